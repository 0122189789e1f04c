package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Persister 幂等写入文章、来源和引用
type Persister struct {
	store *Store
	saved atomic.Int64
}

// NewPersister 创建持久化器
func NewPersister(s *Store) *Persister {
	return &Persister{store: s}
}

// Saved 本进程新建的文章数
func (p *Persister) Saved() int {
	return int(p.saved.Load())
}

// Persist 在一个事务中写入来源、文章和引用
// slug已存在或触发任何唯一约束时视为成功,返回Created=false
func (p *Persister) Persist(ctx context.Context, draft *models.ArticleDraft) (*models.PersistResult, error) {
	if draft == nil {
		return nil, fmt.Errorf("待入库文章为空")
	}

	result, err := p.persistTx(ctx, draft)
	if err != nil {
		if isUniqueViolation(err) {
			return &models.PersistResult{Slug: draft.Article.Slug, Created: false}, nil
		}
		return nil, fmt.Errorf("文章入库失败 [%s]: %w", draft.Article.Slug, err)
	}

	if result.Created {
		p.saved.Add(1)
	}
	return result, nil
}

func (p *Persister) persistTx(ctx context.Context, draft *models.ArticleDraft) (*models.PersistResult, error) {
	db := p.store.db
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sourceID, err := getOrCreateSource(ctx, tx, &draft.Source)
	if err != nil {
		return nil, err
	}

	a := draft.Article
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO articles (id, slug, title, body, status, provenance, source_url, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO NOTHING`),
		a.ID, a.Slug, a.Title, a.BodyText, string(a.Status), a.Provenance, a.SourceURL, sourceID,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		var existingID string
		if err := tx.GetContext(ctx, &existingID, tx.Rebind(`SELECT id FROM articles WHERE slug = ?`), a.Slug); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &models.PersistResult{ArticleID: existingID, Slug: a.Slug, Created: false}, nil
	}

	c := draft.Citation
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO citations (id, article_id, url, publisher, cited_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (article_id, url) DO NOTHING`),
		c.ID, a.ID, c.URL, c.Publisher, c.Date,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &models.PersistResult{ArticleID: a.ID, Slug: a.Slug, Created: true}, nil
}

// getOrCreateSource 按base URL查找来源,不存在时创建
func getOrCreateSource(ctx context.Context, tx *sqlx.Tx, src *models.SourceRecord) (string, error) {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO sources (id, url, name, organization, grade)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING`),
		src.ID, src.URL, src.Name, src.Organization, src.Grade,
	); err != nil {
		return "", err
	}

	var id string
	if err := tx.GetContext(ctx, &id, tx.Rebind(`SELECT id FROM sources WHERE url = ?`), src.URL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("来源记录写入后未找到: %s", src.URL)
		}
		return "", err
	}
	return id, nil
}

// isUniqueViolation postgres错误码23505或sqlite的UNIQUE约束错误
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
