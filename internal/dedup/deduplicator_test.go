package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCorpus struct {
	sourceURLs  map[string]bool
	provenances []string
	slugs       map[string]bool
	err         error
}

func (f *fakeCorpus) HasSourceURL(_ context.Context, pageURL string) (bool, error) {
	return f.sourceURLs[pageURL], f.err
}

// 模拟SQL LIKE的大小写不敏感匹配
func (f *fakeCorpus) ProvenancesContaining(_ context.Context, substr string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, p := range f.provenances {
		if strings.Contains(strings.ToLower(p), strings.ToLower(substr)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCorpus) SlugExists(_ context.Context, slug string) (bool, error) {
	return f.slugs[slug], f.err
}

func newCorpus() *fakeCorpus {
	return &fakeCorpus{
		sourceURLs: map[string]bool{
			"https://www.who.int/news-room/fact-sheets/detail/infant-and-young-child-feeding": true,
		},
		provenances: []string{
			"Source: https://www.healthychildren.org/English/ages-stages/baby/Pages/Starting-Solid-Foods.aspx | Organization: American Academy of Pediatrics | Region: US",
			"Source: https://www.nhs.uk/start-for-life/baby/weaning/what-to-feed-your-baby/ | Organization: NHS | Region: GB",
			"Source: https://www.nhs.uk/start-for-life/baby/weaning/what-to-feed-your-baby/?tab=2 | Organization: NHS | Region: GB",
		},
		slugs: map[string]bool{"starting-solid-foods": true},
	}
}

func TestCheckCandidate(t *testing.T) {
	d := New(newCorpus())
	ctx := context.Background()

	tests := []struct {
		name string
		url  string
		tier Tier
	}{
		{"source_url精确命中", "https://www.who.int/news-room/fact-sheets/detail/infant-and-young-child-feeding", TierExact},
		{"来源记录精确命中", "https://www.healthychildren.org/English/ages-stages/baby/Pages/Starting-Solid-Foods.aspx", TierExact},
		{"大小写不同不算精确命中", "https://www.healthychildren.org/english/ages-stages/baby/pages/starting-solid-foods.aspx", TierNew},
		{"路径出现在多条记录中", "http://www.nhs.uk/start-for-life/baby/weaning/what-to-feed-your-baby", TierPath},
		{"路径只出现一次", "https://healthychildren.org/English/ages-stages/baby/Pages/Starting-Solid-Foods.aspx", TierNew},
		{"主机不在语料中", "https://www.example.org/start-for-life/baby/weaning/what-to-feed-your-baby/", TierNew},
		{"根路径不适用Tier 2", "https://nhs.uk/", TierNew},
		{"全新URL", "https://www.nhs.uk/start-for-life/baby/weaning/first-foods/", TierNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := d.CheckCandidate(ctx, tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.tier, v.Tier, v.Reason)
		})
	}
}

func TestCheckCandidate_Confidence(t *testing.T) {
	d := New(newCorpus())
	ctx := context.Background()

	v, err := d.CheckCandidate(ctx, "https://www.healthychildren.org/English/ages-stages/baby/Pages/Starting-Solid-Foods.aspx")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Confidence)
	assert.True(t, v.Duplicate())

	v, err = d.CheckCandidate(ctx, "http://www.nhs.uk/start-for-life/baby/weaning/what-to-feed-your-baby")
	require.NoError(t, err)
	assert.Equal(t, TierPath, v.Tier)
	assert.InDelta(t, 0.8, v.Confidence, 1e-9)
}

// 精确命中优先于其他层级,与标题无关
func TestExactMatchPrecedence(t *testing.T) {
	d := New(newCorpus())
	ctx := context.Background()
	pageURL := "https://www.nhs.uk/start-for-life/baby/weaning/what-to-feed-your-baby/?tab=2"

	pre, err := d.CheckCandidate(ctx, pageURL)
	require.NoError(t, err)
	assert.Equal(t, TierExact, pre.Tier)

	final, err := d.FinalCheck(ctx, pageURL, "starting-solid-foods")
	require.NoError(t, err)
	assert.Equal(t, TierExact, final.Tier)
}

func TestFinalCheck(t *testing.T) {
	d := New(newCorpus())
	ctx := context.Background()

	v, err := d.FinalCheck(ctx, "https://www.nhs.uk/start-for-life/baby/weaning/new-page/", "starting-solid-foods")
	require.NoError(t, err)
	assert.Equal(t, TierSlug, v.Tier)
	assert.Equal(t, 1.0, v.Confidence)

	v, err = d.FinalCheck(ctx, "https://www.nhs.uk/start-for-life/baby/weaning/new-page/", "new-page")
	require.NoError(t, err)
	assert.False(t, v.Duplicate())

	// 最终检查不使用Tier 2
	v, err = d.FinalCheck(ctx, "http://www.nhs.uk/start-for-life/baby/weaning/what-to-feed-your-baby", "fresh-slug")
	require.NoError(t, err)
	assert.Equal(t, TierNew, v.Tier)
}

func TestCorpusError(t *testing.T) {
	boom := errors.New("database is locked")
	d := New(&fakeCorpus{err: boom})

	_, err := d.CheckCandidate(context.Background(), "https://a.org/x")
	assert.ErrorIs(t, err, boom)

	_, err = d.FinalCheck(context.Background(), "https://a.org/x", "x")
	assert.ErrorIs(t, err, boom)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "exact", TierExact.String())
	assert.Equal(t, "path", TierPath.String())
	assert.Equal(t, "slug", TierSlug.String())
	assert.Equal(t, "new", TierNew.String())
}
