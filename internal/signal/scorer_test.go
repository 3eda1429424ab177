package signal

import (
	"strings"
	"testing"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	scorer, err := NewScorer(rules.Default().Signal)
	require.NoError(t, err)
	return scorer
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		email          model.EmailMessage
		wantType       model.EmailType
		wantConfidence int
	}{
		{
			name: "reply subject short-circuits to primary",
			email: model.EmailMessage{
				Subject: "Re: 打ち合わせの件",
				From:    "tanaka@example.com",
				Body:    "明日の会議についてです。",
			},
			wantType:       model.EmailTypePrimary,
			wantConfidence: 100,
		},
		{
			name: "forwarded invoice stays primary",
			email: model.EmailMessage{
				Subject: "Fwd: invoice for March",
				From:    "billing@vendor.example.com",
				Body:    "Please see the attached invoice.",
			},
			wantType:       model.EmailTypePrimary,
			wantConfidence: 100,
		},
		{
			name: "two service keywords reach the threshold",
			email: model.EmailMessage{
				Subject: "システムのお知らせ",
				From:    "support@service.example.com",
				Body:    "メンテナンスを実施します。認証コードの再発行が必要です。",
			},
			wantType:       model.EmailTypeServiceAnnouncement,
			wantConfidence: 50,
		},
		{
			name: "service contribution is capped",
			email: model.EmailMessage{
				Subject: "重要なお知らせ",
				From:    "support@service.example.com",
				Body:    "メンテナンスのため停止します。認証コードを確認してください。利用規約も更新されました。",
			},
			wantType:       model.EmailTypeServiceAnnouncement,
			wantConfidence: 50,
		},
		{
			name: "unsubscribe keyword plus body marker makes a newsletter",
			email: model.EmailMessage{
				Subject: "Weekly digest",
				From:    "digest@news.example.com",
				Body:    "Click here to unsubscribe from this list.",
			},
			wantType:       model.EmailTypeNewsletter,
			wantConfidence: 50,
		},
		{
			name: "ESP domain boosts marketing keywords over the line",
			email: model.EmailMessage{
				Subject: "今週の限定セール",
				From:    "news@mg.mailchimp.com",
				Body:    "お見逃しなく。",
			},
			wantType:       model.EmailTypeNewsletter,
			wantConfidence: 70,
		},
		{
			name: "no-reply reinforces an existing service score but stays below threshold",
			email: model.EmailMessage{
				Subject: "Server notice",
				From:    "no-reply@ops.example.com",
				Body:    "Scheduled maintenance window this weekend.",
			},
			wantType:       model.EmailTypePrimary,
			wantConfidence: 55,
		},
		{
			name: "no-reply defaults to the newsletter side",
			email: model.EmailMessage{
				Subject: "お知らせ",
				From:    "noreply@shop.example.com",
				Body:    "キャンペーン実施中。クーポンもあります。",
			},
			wantType:       model.EmailTypeNewsletter,
			wantConfidence: 60,
		},
		{
			name: "order confirmation is primary",
			email: model.EmailMessage{
				Subject: "ご注文確認 Order #12345",
				From:    "order@amazon.co.jp",
				Body:    "合計 ¥3,980",
			},
			wantType:       model.EmailTypePrimary,
			wantConfidence: 100,
		},
	}

	scorer := newTestScorer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Classify(tt.email)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantConfidence, got.Confidence)
		})
	}
}

func TestClassifyLinkFlood(t *testing.T) {
	scorer := newTestScorer(t)

	var b strings.Builder
	b.WriteString("新商品のご案内。配信停止はこちら。\n")
	for i := 0; i < 8; i++ {
		b.WriteString("https://shop.example.com/item\n")
	}

	got := scorer.Classify(model.EmailMessage{
		Subject: "news",
		From:    "info@shop.example.com",
		Body:    b.String(),
	})

	assert.Equal(t, model.EmailTypeNewsletter, got.Type)
	assert.Contains(t, got.Reasons, "many links (8)")
}

func TestClassifyReasonsRecordHits(t *testing.T) {
	scorer := newTestScorer(t)

	got := scorer.Classify(model.EmailMessage{
		Subject: "セールのお知らせ",
		From:    "no-reply@mg.sendgrid.net",
		Body:    "割引クーポンをどうぞ。unsubscribe here.",
	})

	assert.Equal(t, model.EmailTypeNewsletter, got.Type)
	assert.Contains(t, got.Reasons, "marketing ESP domain: sendgrid")
	assert.Contains(t, got.Reasons, "no-reply sender")
	assert.Contains(t, got.Reasons, "unsubscribe marker in body")
}

func TestClassifyIsDeterministic(t *testing.T) {
	scorer := newTestScorer(t)
	email := model.EmailMessage{
		Subject: "今週の限定セール",
		From:    "news@mg.mailchimp.com",
		Body:    "クーポン配布中 https://a.example https://b.example",
	}

	first := scorer.Classify(email)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, scorer.Classify(email))
	}
}

func TestNewScorerRejectsBadPattern(t *testing.T) {
	r := rules.Default().Signal
	r.PersonalSubject = append(r.PersonalSubject, "([")
	_, err := NewScorer(r)
	require.Error(t, err)
}
