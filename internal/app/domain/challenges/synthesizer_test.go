package challenges

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/domain/descriptions"
	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

type stubDescriber struct {
	resp  descriptions.Response
	err   error
	delay time.Duration
}

func (s stubDescriber) Describe(ctx context.Context, _ descriptions.Request) (descriptions.Response, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return descriptions.Response{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.resp, s.err
}

func TestSynthesizer_Synthesize(t *testing.T) {
	fallback := FallbackDraft(models.CategoryCafe, "Café Louvre")

	tests := []struct {
		name      string
		describer descriptions.Describer
		timeout   time.Duration
		want      models.Draft
	}{
		{
			name:      "generated description",
			describer: stubDescriber{resp: descriptions.Response{Title: "Latte Art", Description: "Order a latte.", Reward: 90}},
			want:      models.Draft{Title: "Latte Art", Description: "Order a latte.", Reward: 90},
		},
		{
			name:      "reward clamped to range",
			describer: stubDescriber{resp: descriptions.Response{Title: "Big", Description: "Huge reward.", Reward: 500}},
			want:      models.Draft{Title: "Big", Description: "Huge reward.", Reward: maxReward},
		},
		{
			name:      "service error",
			describer: stubDescriber{err: errors.New("connection refused")},
			want:      fallback,
		},
		{
			name:      "explicit fallback flag",
			describer: stubDescriber{resp: descriptions.Response{Title: "ignored", Description: "ignored", Reward: 80, Fallback: true}},
			want:      fallback,
		},
		{
			name:      "incomplete payload",
			describer: stubDescriber{resp: descriptions.Response{Title: "No description", Reward: 80}},
			want:      fallback,
		},
		{
			name:      "timeout",
			describer: stubDescriber{resp: descriptions.Response{Title: "Late", Description: "Too late.", Reward: 80}, delay: time.Second},
			timeout:   20 * time.Millisecond,
			want:      fallback,
		},
		{
			name:      "disabled service",
			describer: descriptions.DisabledDescriber{},
			want:      fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSynthesizer(tt.describer, tt.timeout, zap.NewNop())
			got := s.Synthesize(context.Background(), models.CategoryCafe, "Café Louvre", 250)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFallbackDraft_EveryCategory(t *testing.T) {
	for _, category := range models.AllCategories {
		d := FallbackDraft(category, "Old Town Square")
		assert.NotEmpty(t, d.Title, category)
		assert.Contains(t, d.Description, "Old Town Square", category)
		assert.GreaterOrEqual(t, d.Reward, minReward, category)
		assert.LessOrEqual(t, d.Reward, maxReward, category)
	}
}

func TestFallbackDraft_ExplorerTemplate(t *testing.T) {
	assert.Equal(t, explorerTemplate.title, FallbackDraft(models.CategoryRandom, "x").Title)
	assert.Equal(t, explorerTemplate.title, FallbackDraft(models.CategoryStreet, "x").Title)
	assert.NotEqual(t, explorerTemplate.title, FallbackDraft(models.CategoryCafe, "x").Title)
}
