package browser

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"github.com/ibeckermayer/xsweep/internal/config"
)

func TestOptions(t *testing.T) {
	visible := Options(config.BrowserConfig{})
	headless := Options(config.BrowserConfig{Headless: true})

	assert.Greater(t, len(visible), len(chromedp.DefaultExecAllocatorOptions))
	assert.Len(t, headless, len(visible)+1, "headless also disables the GPU")

	// building options must not write into the shared defaults
	again := Options(config.BrowserConfig{})
	assert.Len(t, again, len(visible))
}
