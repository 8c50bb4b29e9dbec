package browser

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/config"
)

func flagMap(flags []flag) map[string]interface{} {
	m := make(map[string]interface{}, len(flags))
	for _, f := range flags {
		m[f.name] = f.value
	}
	return m
}

func TestAllocatorFlags(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser()
	cfg.Args = []string{"--window-size=1280,800", "--lang=ru-RU", "mute-audio", "--"}

	flags := flagMap(allocatorFlags(cfg))

	assert.Equal(t, false, flags["enable-automation"])
	assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
	assert.Equal(t, true, flags["headless"])
	assert.Equal(t, "1280,800", flags["window-size"])
	assert.Equal(t, "ru-RU", flags["lang"])
	assert.Equal(t, true, flags["mute-audio"])
	assert.NotContains(t, flags, "")
	if runtime.GOOS == "linux" {
		assert.Equal(t, true, flags["no-sandbox"])
	}

	cfg.Headless = false
	flags = flagMap(allocatorFlags(cfg))
	assert.Equal(t, false, flags["headless"])
	assert.Equal(t, false, flags["disable-gpu"])

	assert.Greater(t, len(AllocatorOptions(cfg)), len(allocatorFlags(cfg)))
}

func TestCookieConversion(t *testing.T) {
	in := []*network.Cookie{
		{Name: "yandexuid", Value: "42", Domain: ".yandex.ru", Path: "/", Expires: 1893456000.5, Secure: true, SameSite: network.CookieSameSiteNone},
		nil,
		{Name: "sess", Value: "x", Domain: "forms.yandex.ru", Path: "/", Session: true, HTTPOnly: true},
	}

	cookies := fromCDPCookies(in)
	require.Len(t, cookies, 2)
	assert.Equal(t, "None", cookies[0].SameSite)
	assert.Equal(t, float64(-1), cookies[1].Expires)

	params := toCookieParams(cookies)
	require.Len(t, params, 2)
	require.NotNil(t, params[0].Expires)
	assert.Equal(t, int64(1893456000), params[0].Expires.Time().Unix())
	assert.Equal(t, network.CookieSameSiteNone, params[0].SameSite)
	assert.Nil(t, params[1].Expires, "session cookies stay session cookies")
	assert.True(t, params[1].HTTPOnly)
	assert.Empty(t, params[1].SameSite)
}

func TestScripts(t *testing.T) {
	s := newScripts(config.NewDefaultConfig().Form().Selectors)

	assert.Contains(t, s.questionCount(), `document.querySelector(".SurveyPage")`)
	assert.Contains(t, s.questionCount(), `querySelectorAll(".QuestionMarkup")`)
	assert.Contains(t, s.optionCount(3), `[3]`)

	mark := s.markOption(1, 2)
	assert.Contains(t, mark, `[1]`)
	assert.Contains(t, mark, `querySelectorAll("label")[2]`)
	assert.Contains(t, mark, `"no-input"`)
	assert.Contains(t, s.markSubmit(), `"button[type=\"submit\"]"`, "selectors are escaped as JS strings")
	assert.Equal(t, `[data-formrelay-target="1"]`, targetSelector())
}

func TestRestoreStorageScript(t *testing.T) {
	script, err := restoreStorageScript([]schemas.OriginStorage{
		{Origin: "https://forms.yandex.ru", LocalStorage: map[string]string{"k": "v"}},
	})
	require.NoError(t, err)
	assert.Contains(t, script, `"origin":"https://forms.yandex.ru"`)
	assert.Contains(t, script, `"localStorage":{"k":"v"}`)
}

func TestCombineContext(t *testing.T) {
	type key struct{}
	tabCtx := context.WithValue(context.Background(), key{}, "tab")

	t.Run("canceled by the operation context", func(t *testing.T) {
		opCtx, cancelOp := context.WithCancel(context.Background())
		combined, cancel := CombineContext(tabCtx, opCtx)
		defer cancel()

		assert.Equal(t, "tab", combined.Value(key{}))
		cancelOp()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled")
		}
	})

	t.Run("inherits the operation deadline", func(t *testing.T) {
		opCtx, cancelOp := context.WithTimeout(context.Background(), time.Hour)
		defer cancelOp()
		combined, cancel := CombineContext(tabCtx, opCtx)
		defer cancel()

		want, _ := opCtx.Deadline()
		got, ok := combined.Deadline()
		require.True(t, ok)
		assert.Equal(t, want, got)
	})
}

func TestDetach(t *testing.T) {
	type key struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, 1))
	cancel()

	d := Detach(parent)
	assert.NoError(t, d.Err())
	assert.Nil(t, d.Done())
	assert.Equal(t, 1, d.Value(key{}))
}
