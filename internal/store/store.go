// Package store 已入库语料的持久化层
// 通过sqlx支持sqlite(默认,纯Go驱动)和postgres两种后端
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultSQLiteDSN 默认sqlite数据库文件
	DefaultSQLiteDSN = "data/harvest.db"

	defaultPingTimeout = 5 * time.Second
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config 数据库配置
type Config struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_minutes"`
}

// Validate 检查驱动和DSN
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		return nil
	case DriverPostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("postgres需要配置database.dsn (或环境变量HARVEST_DATABASE_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("不支持的数据库驱动: %q (有效值: sqlite, postgres)", c.Driver)
	}
}

// schema 三张表加source_url索引,可重复执行
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		id           TEXT PRIMARY KEY,
		url          TEXT NOT NULL UNIQUE,
		name         TEXT NOT NULL,
		organization TEXT NOT NULL DEFAULT '',
		grade        TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id         TEXT PRIMARY KEY,
		slug       TEXT NOT NULL UNIQUE,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'draft',
		provenance TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		source_id  TEXT REFERENCES sources(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_source_url ON articles (source_url)`,
	`CREATE TABLE IF NOT EXISTS citations (
		id         TEXT PRIMARY KEY,
		article_id TEXT NOT NULL REFERENCES articles(id),
		url        TEXT NOT NULL,
		publisher  TEXT NOT NULL DEFAULT '',
		cited_at   TIMESTAMP,
		UNIQUE (article_id, url)
	)`,
}

// Store 数据库连接
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open 打开数据库,验证连接并建表
// 任何错误都属于启动阶段的致命错误
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// sqlite只允许单写连接; :memory: 数据库也依赖同一连接
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		}
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Ping 验证数据库可达
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("数据库不可达: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	if s.driver == DriverSQLite {
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
			if _, err := s.db.ExecContext(ctx, pragma); err != nil {
				return fmt.Errorf("设置sqlite参数失败: %w", err)
			}
		}
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("建表失败: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver 当前驱动名称
func (s *Store) Driver() string {
	return s.driver
}

// HasSourceURL source_url列中是否存在该URL
func (s *Store) HasSourceURL(ctx context.Context, pageURL string) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM articles WHERE source_url = ?`)
	if err := s.db.GetContext(ctx, &n, q, pageURL); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ProvenancesContaining 返回包含substr的来源记录
// sqlite的LIKE不区分ASCII大小写,结果是超集,由调用方精确比较
func (s *Store) ProvenancesContaining(ctx context.Context, substr string) ([]string, error) {
	var provenances []string
	q := s.db.Rebind(`SELECT provenance FROM articles WHERE provenance LIKE ? ESCAPE '\'`)
	if err := s.db.SelectContext(ctx, &provenances, q, "%"+escapeLike(substr)+"%"); err != nil {
		return nil, err
	}
	return provenances, nil
}

// SlugExists slug是否已存在
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM articles WHERE slug = ?`)
	if err := s.db.GetContext(ctx, &n, q, slug); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountArticles 文章总数
func (s *Store) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM articles`); err != nil {
		return 0, err
	}
	return n, nil
}

// ArticleBySlug 按slug查询文章
func (s *Store) ArticleBySlug(ctx context.Context, slug string) (*ArticleRow, error) {
	var row ArticleRow
	q := s.db.Rebind(`SELECT id, slug, title, body, status, provenance, source_url, source_id FROM articles WHERE slug = ?`)
	if err := s.db.GetContext(ctx, &row, q, slug); err != nil {
		return nil, err
	}
	return &row, nil
}

// CitationsFor 查询文章的引用
func (s *Store) CitationsFor(ctx context.Context, articleID string) ([]CitationRow, error) {
	var rows []CitationRow
	q := s.db.Rebind(`SELECT id, article_id, url, publisher FROM citations WHERE article_id = ? ORDER BY url`)
	if err := s.db.SelectContext(ctx, &rows, q, articleID); err != nil {
		return nil, err
	}
	return rows, nil
}

// ArticleRow 文章行
type ArticleRow struct {
	ID         string  `db:"id"`
	Slug       string  `db:"slug"`
	Title      string  `db:"title"`
	Body       string  `db:"body"`
	Status     string  `db:"status"`
	Provenance string  `db:"provenance"`
	SourceURL  string  `db:"source_url"`
	SourceID   *string `db:"source_id"`
}

// CitationRow 引用行
type CitationRow struct {
	ID        string `db:"id"`
	ArticleID string `db:"article_id"`
	URL       string `db:"url"`
	Publisher string `db:"publisher"`
}

// ensureSQLiteDir 为文件型DSN创建所在目录
func ensureSQLiteDir(dsn string) error {
	if strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path, _, _ := strings.Cut(dsn, "?")
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建数据库目录失败 [%s]: %w", dir, err)
		}
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
