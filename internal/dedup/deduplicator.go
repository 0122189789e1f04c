// Package dedup 判断候选URL或文章是否已存在于已入库语料中
//
// 三个层级:
//   - Tier 1 精确匹配: URL命中source_url列,或逐字节出现在某条来源记录中
//   - Tier 2 路径/域名匹配: 主机名出现在语料中,且URL路径出现在多于一条来源记录中
//   - Tier 3 slug冲突: 由标题生成的slug已存在
//
// 获取前只做Tier 1-2预过滤以节省额度;入库前的Tier 3是防止重复写入的最终依据。
package dedup

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Tier 去重层级
type Tier int

const (
	TierNew   Tier = 0 // 未命中任何层级
	TierExact Tier = 1 // 精确URL匹配
	TierPath  Tier = 2 // 路径/域名启发式匹配
	TierSlug  Tier = 3 // slug冲突
)

// String 返回层级名称
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPath:
		return "path"
	case TierSlug:
		return "slug"
	default:
		return "new"
	}
}

// Corpus 已入库语料的只读查询
type Corpus interface {
	// HasSourceURL source_url列中是否存在该URL
	HasSourceURL(ctx context.Context, pageURL string) (bool, error)
	// ProvenancesContaining 返回包含substr的来源记录
	// 实现可以返回不区分大小写的超集,调用方会再做精确比较
	ProvenancesContaining(ctx context.Context, substr string) ([]string, error)
	// SlugExists slug是否已存在
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// Verdict 去重判定
type Verdict struct {
	Tier       Tier
	Confidence float64
	Reason     string
}

// Duplicate 是否应跳过
func (v Verdict) Duplicate() bool {
	return v.Tier != TierNew
}

// Deduplicator 三层去重器
type Deduplicator struct {
	corpus Corpus
}

// New 创建去重器
func New(corpus Corpus) *Deduplicator {
	return &Deduplicator{corpus: corpus}
}

// CheckCandidate 获取前预过滤,只执行Tier 1和Tier 2
func (d *Deduplicator) CheckCandidate(ctx context.Context, pageURL string) (Verdict, error) {
	if v, err := d.exact(ctx, pageURL); err != nil || v.Duplicate() {
		return v, err
	}
	return d.pathHeuristic(ctx, pageURL)
}

// FinalCheck 入库前最终检查,执行Tier 1和Tier 3
// Tier 2存在误判可能,这里不使用
func (d *Deduplicator) FinalCheck(ctx context.Context, pageURL, slug string) (Verdict, error) {
	if v, err := d.exact(ctx, pageURL); err != nil || v.Duplicate() {
		return v, err
	}

	if slug == "" {
		return Verdict{Tier: TierNew}, nil
	}
	exists, err := d.corpus.SlugExists(ctx, slug)
	if err != nil {
		return Verdict{}, fmt.Errorf("查询slug失败: %w", err)
	}
	if exists {
		return Verdict{Tier: TierSlug, Confidence: 1.0, Reason: fmt.Sprintf("slug已存在: %s", slug)}, nil
	}
	return Verdict{Tier: TierNew}, nil
}

func (d *Deduplicator) exact(ctx context.Context, pageURL string) (Verdict, error) {
	if pageURL == "" {
		return Verdict{Tier: TierNew}, nil
	}

	found, err := d.corpus.HasSourceURL(ctx, pageURL)
	if err != nil {
		return Verdict{}, fmt.Errorf("查询source_url失败: %w", err)
	}
	if found {
		return Verdict{Tier: TierExact, Confidence: 1.0, Reason: "source_url已存在"}, nil
	}

	n, err := d.countContaining(ctx, pageURL)
	if err != nil {
		return Verdict{}, err
	}
	if n > 0 {
		return Verdict{Tier: TierExact, Confidence: 1.0, Reason: "URL已出现在来源记录中"}, nil
	}
	return Verdict{Tier: TierNew}, nil
}

func (d *Deduplicator) pathHeuristic(ctx context.Context, pageURL string) (Verdict, error) {
	host, path, ok := hostAndPath(pageURL)
	if !ok {
		return Verdict{Tier: TierNew}, nil
	}

	hostHits, err := d.countContaining(ctx, host)
	if err != nil || hostHits == 0 {
		return Verdict{Tier: TierNew}, err
	}

	pathHits, err := d.countContaining(ctx, path)
	if err != nil {
		return Verdict{}, err
	}
	if pathHits > 1 {
		return Verdict{
			Tier:       TierPath,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("路径 %s 出现在 %d 条来源记录中", path, pathHits),
		}, nil
	}
	return Verdict{Tier: TierNew}, nil
}

// countContaining 统计逐字节包含substr的来源记录数
func (d *Deduplicator) countContaining(ctx context.Context, substr string) (int, error) {
	provenances, err := d.corpus.ProvenancesContaining(ctx, substr)
	if err != nil {
		return 0, fmt.Errorf("查询来源记录失败: %w", err)
	}
	n := 0
	for _, p := range provenances {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n, nil
}

// hostAndPath 返回小写主机名和去掉末尾斜杠的路径
// 路径为空或为根路径时不适用Tier 2
func hostAndPath(pageURL string) (string, string, bool) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	if path == "" {
		return "", "", false
	}
	return strings.ToLower(u.Hostname()), path, true
}
