package browser

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/config"
)

// targetAttr marks the element the next click goes to.
const targetAttr = "data-formrelay-target"

// Results of markOptionScript.
const (
	markOK       = "ok"
	markNoOption = "no-option"
	markNoInput  = "no-input"
)

// scripts renders the page-side lookups for one selector set. Selectors are embedded as JSON
// string literals.
type scripts struct {
	container, question, option, input, submit string
}

func newScripts(sel config.SelectorsConfig) scripts {
	return scripts{
		container: jsString(sel.Container),
		question:  jsString(sel.Question),
		option:    jsString(sel.Option),
		input:     jsString(sel.Input),
		submit:    jsString(sel.Submit),
	}
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func (s scripts) blocks() string {
	return fmt.Sprintf(`(document.querySelector(%s) ? Array.from(document.querySelector(%s).querySelectorAll(%s)) : [])`,
		s.container, s.container, s.question)
}

func (s scripts) questionCount() string {
	return fmt.Sprintf(`(() => %s.length)()`, s.blocks())
}

func (s scripts) optionCount(q int) string {
	return fmt.Sprintf(`(() => {
  const block = %s[%d];
  return block ? block.querySelectorAll(%s).length : 0;
})()`, s.blocks(), q, s.option)
}

func (s scripts) markOption(q, o int) string {
	return fmt.Sprintf(`(() => {
  document.querySelectorAll('[%[1]s]').forEach(e => e.removeAttribute('%[1]s'));
  const block = %[2]s[%[3]d];
  const option = block ? block.querySelectorAll(%[4]s)[%[5]d] : null;
  if (!option) return %[7]q;
  const input = option.querySelector(%[6]s) || option.control || null;
  if (!input) return %[8]q;
  option.setAttribute('%[1]s', '1');
  option.scrollIntoView({block: 'center'});
  return %[9]q;
})()`, targetAttr, s.blocks(), q, s.option, o, s.input, markNoOption, markNoInput, markOK)
}

func (s scripts) markSubmit() string {
	return fmt.Sprintf(`(() => {
  document.querySelectorAll('[%[1]s]').forEach(e => e.removeAttribute('%[1]s'));
  const button = document.querySelector(%[2]s);
  if (!button) return false;
  button.setAttribute('%[1]s', '1');
  button.scrollIntoView({block: 'center'});
  return true;
})()`, targetAttr, s.submit)
}

func unmarkScript() string {
	return fmt.Sprintf(`(() => { document.querySelectorAll('[%[1]s]').forEach(e => e.removeAttribute('%[1]s')); return true; })()`, targetAttr)
}

func targetSelector() string {
	return fmt.Sprintf(`[%s="1"]`, targetAttr)
}

// localStorageSnapshot is what captureStorageScript returns.
type localStorageSnapshot struct {
	Origin string            `json:"origin"`
	Items  map[string]string `json:"items"`
}

const captureStorageScript = `(() => {
  const items = {};
  try {
    for (let i = 0; i < localStorage.length; i++) {
      const k = localStorage.key(i);
      items[k] = localStorage.getItem(k);
    }
  } catch (e) {}
  return {origin: location.origin, items: items};
})()`

// restoreStorageScript writes the stored items of the document's own origin when a new
// document starts.
func restoreStorageScript(origins []schemas.OriginStorage) (string, error) {
	data, err := json.Marshal(origins)
	if err != nil {
		return "", fmt.Errorf("failed to encode local storage: %w", err)
	}
	return fmt.Sprintf(`(() => {
  const origins = %s;
  for (const o of origins) {
    if (o.origin !== location.origin) continue;
    for (const [k, v] of Object.entries(o.localStorage || {})) {
      try { localStorage.setItem(k, v); } catch (e) {}
    }
  }
})();`, data), nil
}
