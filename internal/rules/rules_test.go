package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTables(t *testing.T) {
	set := Default()

	assert.NotEmpty(t, set.Signal.ServiceKeywords)
	assert.NotEmpty(t, set.Signal.NewsletterKeywords)
	assert.NotEmpty(t, set.Extract.StrongKeywords)
	assert.NotEmpty(t, set.Extract.Vendors)
	assert.NotEmpty(t, set.Roles.Cancellation)

	assert.Equal(t, 25, set.Signal.ServiceWeight)
	assert.Equal(t, 50, set.Signal.ServiceCap)
	assert.Equal(t, 20, set.Signal.NewsletterWeight)
	assert.Equal(t, 60, set.Signal.NewsletterCap)
	assert.Equal(t, 7, set.Signal.LinkThreshold)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, len(def.Extract.Vendors), len(set.Extract.Vendors))
	assert.Equal(t, len(def.Signal.ServiceKeywords), len(set.Signal.ServiceKeywords))
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, len(Default().Extract.Vendors), len(set.Extract.Vendors))
}

func TestLoadAppendsOverrides(t *testing.T) {
	content := `
signal:
  newsletter_keywords:
    - flash deal
extract:
  strong_keywords:
    - ご購入ありがとうございました
  vendors:
    - name: MyShop
      patterns:
        - myshop
  commerce_domains:
    - myshop.example.com
roles:
  cancellation:
    - 注文取消のお知らせ
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	set, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Len(t, set.Extract.Vendors, len(def.Extract.Vendors)+1)
	assert.Equal(t, "MyShop", set.Extract.Vendors[len(set.Extract.Vendors)-1].Name)
	assert.Contains(t, set.Signal.NewsletterKeywords, "flash deal")
	assert.Contains(t, set.Extract.StrongKeywords, "ご購入ありがとうございました")
	assert.Contains(t, set.Extract.CommerceDomains, "myshop.example.com")
	assert.Contains(t, set.Roles.Cancellation, "注文取消のお知らせ")

	// Built-in entries survive an override.
	assert.Equal(t, "Amazon", set.Extract.Vendors[0].Name)
	assert.Contains(t, set.Signal.NewsletterKeywords, "unsubscribe")
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signal: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
