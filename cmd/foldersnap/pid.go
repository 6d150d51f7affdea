package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// 检查是否已有守护进程在运行，过期的 PID 文件会被删除
func checkRunningDaemon(path string) bool {
	output, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil || pid <= 0 {
		os.Remove(path)
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(path)
		return false
	}

	// 在Unix系统中，发送信号0用于检查进程是否存在
	if err := process.Signal(syscall.Signal(0)); err != nil {
		os.Remove(path)
		return false
	}
	return true
}

// 创建进程锁
func createPIDFile(path string) error {
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	return nil
}

// 清理进程锁
func cleanupPIDFile(path string) {
	os.Remove(path)
}
