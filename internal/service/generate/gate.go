package generate

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// StopToken 协作式取消令牌
// 每次运行创建一个，在固定检查点（任务开始前、远程调用返回后、
// 保存循环内）检查；置位后正在进行的 HTTP 调用允许完成，但结果被丢弃
type StopToken struct {
	flag atomic.Bool
}

// Stop 置位令牌
func (t *StopToken) Stop() {
	t.flag.Store(true)
}

// Stopped 检查令牌是否已置位
func (t *StopToken) Stopped() bool {
	return t != nil && t.flag.Load()
}

// Gate 单槽运行闸门
// 同一时刻最多一个生成运行改写脚本文本，这个不变量通过信号量
// 结构性保证，而不是约定
type Gate struct {
	sem     *semaphore.Weighted
	mu      sync.Mutex
	current *StopToken
	kind    string
}

// NewGate 创建运行闸门
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// TryAcquire 尝试占用运行槽，占用成功时返回本次运行的停止令牌
// 槽被占用时立即返回 false，调用方应报告"忙"而不是排队等待
func (g *Gate) TryAcquire(kind string) (*StopToken, bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	token := &StopToken{}
	g.mu.Lock()
	g.current = token
	g.kind = kind
	g.mu.Unlock()
	return token, true
}

// Release 释放运行槽
func (g *Gate) Release() {
	g.mu.Lock()
	g.current = nil
	g.kind = ""
	g.mu.Unlock()
	g.sem.Release(1)
}

// Stop 置位当前运行的停止令牌，没有运行时返回 false
func (g *Gate) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return false
	}
	g.current.Stop()
	return true
}

// Running 返回当前运行的类型，空闲时 ok=false
func (g *Gate) Running() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.kind, g.current != nil
}
