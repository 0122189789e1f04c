package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/config"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/core"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/crawlers"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/store"
	"github.com/RecoveryAshes/AuthorityHarvest/internal/utils"
)

// pipeline 一次运行所需的全部组件
type pipeline struct {
	cfg        *core.Config
	headers    *core.HeaderManager
	fetchers   *crawlers.FetcherSet
	discoverer *crawlers.Discoverer
	store      *store.Store
	persister  *store.Persister
}

// newFetchers 创建头部管理器和获取器,头部配置错误属于启动错误
func newFetchers(cfg *core.Config) (*core.HeaderManager, *crawlers.FetcherSet, error) {
	hm, err := core.NewHeaderManager(cfg.Sources.HeadersFile, headers, cfg.Fetch.AcceptLanguage)
	if err != nil {
		return nil, nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := hm.LoadConfig(); err != nil {
		return nil, nil, fmt.Errorf("加载HTTP头部配置失败: %w", err)
	}
	utils.Debugf("当前HTTP头部: %s", hm.SafeHeaders())

	return hm, crawlers.NewFetcherSet(cfg.Fetch, cfg.Browser, hm), nil
}

// newPipeline 按启动顺序创建组件: 头部 → 获取器 → 发现器 → 数据库
// 任何一步失败都在消耗额度之前返回
func newPipeline(ctx context.Context, cfg *core.Config) (*pipeline, error) {
	hm, fetchers, err := newFetchers(cfg)
	if err != nil {
		return nil, err
	}

	var robots *crawlers.RobotsChecker
	if cfg.Sources.RespectRobots {
		robots = crawlers.NewRobotsChecker(nil, crawlers.RobotsAgent)
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		fetchers.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	return &pipeline{
		cfg:        cfg,
		headers:    hm,
		fetchers:   fetchers,
		discoverer: crawlers.NewDiscoverer(fetchers, robots),
		store:      st,
		persister:  store.NewPersister(st),
	}, nil
}

// harvester 每次运行创建新的协调器,账本随之重置
func (p *pipeline) harvester() *core.Harvester {
	return core.NewHarvester(p.cfg.Harvest, p.fetchers, p.discoverer, p.store, p.persister, harvesterOptions(p.cfg)...)
}

func (p *pipeline) Close() error {
	return errors.Join(p.fetchers.Close(), p.store.Close())
}

func harvesterOptions(cfg *core.Config) []core.HarvesterOption {
	var opts []core.HarvesterOption
	if cfg.Output.Progress {
		opts = append(opts, core.WithProgress(os.Stderr))
	}
	if len(cfg.Browser.ContentSelectors) > 0 {
		opts = append(opts, core.WithContentSelectors(cfg.Browser.ContentSelectors))
	}
	return opts
}

// loadSources 加载站点目录并按--source筛选
func loadSources(cfg *core.Config, names []string) ([]*models.Source, error) {
	catalog, err := config.LoadSourceCatalog(cfg.Sources.File)
	if err != nil {
		return nil, fmt.Errorf("加载站点目录失败: %w", err)
	}
	sources, err := catalog.Filter(names)
	if err != nil {
		return nil, err
	}
	return sources, nil
}
