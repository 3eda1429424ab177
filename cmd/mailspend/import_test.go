package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJSONEmails = `[
  {"id": "email-1", "subject": "ご注文の確認", "from": "order@amazon.co.jp", "body": "ご注文ありがとうございます。", "timestamp": "2024-06-01T12:00:00Z"},
  {"id": "email-2", "subject": "発送のお知らせ", "from": "ship@amazon.co.jp", "body": "商品を発送しました。", "timestamp": "2024-06-02T09:00:00Z"}
]`

const testJSONLEmails = `{"id": "email-1", "subject": "ご注文の確認", "from": "order@amazon.co.jp", "body": "ご注文ありがとうございます。", "timestamp": "2024-06-01T12:00:00Z"}

{"id": "email-2", "subject": "Order shipped", "from": "ship@example.com", "body": "On its way.", "timestamp": "2024-06-02T09:00:00Z"}
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadEmailFile(t *testing.T) {
	t.Run("json array", func(t *testing.T) {
		path := writeTempFile(t, "emails.json", testJSONEmails)

		emails, err := readEmailFile(path)
		require.NoError(t, err)
		require.Len(t, emails, 2)
		assert.Equal(t, "email-1", emails[0].ID)
		assert.Equal(t, "ご注文の確認", emails[0].Subject)
		assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), emails[0].Timestamp)
	})

	t.Run("jsonl with blank lines", func(t *testing.T) {
		path := writeTempFile(t, "emails.jsonl", testJSONLEmails)

		emails, err := readEmailFile(path)
		require.NoError(t, err)
		require.Len(t, emails, 2)
		assert.Equal(t, "email-2", emails[1].ID)
		assert.Equal(t, "ship@example.com", emails[1].From)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeTempFile(t, "emails.txt", "not json")

		_, err := readEmailFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported file type")
	})

	t.Run("missing id rejected", func(t *testing.T) {
		path := writeTempFile(t, "emails.json", `[{"subject": "no id"}]`)

		_, err := readEmailFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no id")
	})

	t.Run("malformed jsonl line reports line number", func(t *testing.T) {
		path := writeTempFile(t, "emails.jsonl", `{"id": "ok"}`+"\n"+`{broken`)

		_, err := readEmailFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readEmailFile(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
	})
}

func TestTopSenders(t *testing.T) {
	senders := map[string]int{
		"a@example.com": 3,
		"b@example.com": 7,
		"c@example.com": 1,
		"d@example.com": 5,
	}

	top := topSenders(senders, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "b@example.com", top[0].name)
	assert.Equal(t, 7, top[0].count)
	assert.Equal(t, "d@example.com", top[1].name)
}
