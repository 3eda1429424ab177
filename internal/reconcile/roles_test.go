package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/rules"
)

func TestRoleClassifier(t *testing.T) {
	classifier := NewRoleClassifier(rules.Default().Roles)

	tests := []struct {
		name    string
		subject string
		body    string
		want    model.EmailRole
	}{
		{
			name:    "order confirmation",
			subject: "ご注文の確認",
			body:    "ご注文ありがとうございます。",
			want:    model.RoleOrder,
		},
		{
			name:    "english receipt",
			subject: "Your receipt from Example Store",
			body:    "Thanks for shopping with us.",
			want:    model.RoleOrder,
		},
		{
			name:    "shipping notice",
			subject: "発送のお知らせ",
			body:    "商品を発送いたしました。",
			want:    model.RoleShipping,
		},
		{
			name:    "delivery update counts as shipping",
			subject: "Package update",
			body:    "Your package was delivered today.",
			want:    model.RoleShipping,
		},
		{
			name:    "cancellation",
			subject: "ご注文のキャンセルについて",
			body:    "ご注文はキャンセルされました。",
			want:    model.RoleCancellation,
		},
		{
			name:    "refund is a cancellation",
			subject: "返金のお知らせ",
			body:    "返金手続きが完了しました。",
			want:    model.RoleCancellation,
		},
		{
			name:    "cancellation beats order wording",
			subject: "ご注文キャンセル確認",
			body:    "ご注文番号 123 はキャンセルされました。",
			want:    model.RoleCancellation,
		},
		{
			name:    "cancellation beats shipping wording",
			subject: "Shipment cancelled",
			body:    "Your shipment has been cancelled and refunded.",
			want:    model.RoleCancellation,
		},
		{
			name:    "unrelated mail",
			subject: "会議の日程について",
			body:    "明日の打ち合わせの件です。",
			want:    model.RoleUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(tt.subject, tt.body)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRolePrecedence(t *testing.T) {
	assert.Greater(t, model.RoleOrder.Precedence(), model.RoleShipping.Precedence())
	assert.Greater(t, model.RoleShipping.Precedence(), model.RoleUnknown.Precedence())
	assert.Equal(t, model.RoleUnknown.Precedence(), model.RoleCancellation.Precedence())
}
