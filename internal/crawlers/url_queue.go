package crawlers

import (
	"sync"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
)

// CandidateQueue 候选URL队列
// 按发现顺序保存候选,已见集合保证同一URL只出现一次
type CandidateQueue struct {
	mu    sync.Mutex
	seen  map[string]bool
	items []models.CandidateURL
}

// NewCandidateQueue 创建候选队列
func NewCandidateQueue() *CandidateQueue {
	return &CandidateQueue{
		seen:  make(map[string]bool),
		items: make([]models.CandidateURL, 0),
	}
}

// Push 添加候选,URL已见过时返回false
func (q *CandidateQueue) Push(c models.CandidateURL) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[c.URL] {
		return false
	}
	q.seen[c.URL] = true
	q.items = append(q.items, c)
	return true
}

// MarkSeen 只登记URL不入队,用于排除分类页本身
func (q *CandidateQueue) MarkSeen(urlStr string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seen[urlStr] = true
}

// IsSeen 检查URL是否已见过
func (q *CandidateQueue) IsSeen(urlStr string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seen[urlStr]
}

// Len 队列中的候选数
func (q *CandidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain 取出全部候选并清空队列,已见集合保留
func (q *CandidateQueue) Drain() []models.CandidateURL {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = make([]models.CandidateURL, 0)
	return items
}
