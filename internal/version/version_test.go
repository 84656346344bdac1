package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortRevision(t *testing.T) {
	assert.Equal(t, "abcdef1", shortRevision("abcdef1234567", false))
	assert.Equal(t, "abcdef1-dirty", shortRevision("abcdef1234567", true))
	assert.Equal(t, "abc", shortRevision("abc", false))
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.True(t, strings.HasSuffix(info.String(), runtime.Version()))
}

func TestUserAgent(t *testing.T) {
	assert.True(t, strings.HasPrefix(UserAgent(), "lens/"))
}
