// internal/interact/selectors.go
package interact

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// inputLocation is the result of the locator script: the viewport center of
// the first visible match plus the selector that won.
type inputLocation struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Selector string  `json:"selector"`
}

// jsEncode safely embeds a value into generated JavaScript.
func jsEncode(v interface{}) string {
	s, err := jsoniter.MarshalToString(v)
	if err != nil {
		return "null"
	}
	return s
}

// locateScript builds an IIFE that walks the selector candidates in order
// and returns the center of the first visible match, or null. Visibility
// means non-zero box and not display:none/visibility:hidden/opacity:0.
func locateScript(selectors []string) string {
	return fmt.Sprintf(`
	(function(candidates) {
		const visible = (node) => {
			const rect = node.getBoundingClientRect();
			const style = window.getComputedStyle(node);
			return rect.width > 0 && rect.height > 0 &&
				style.display !== 'none' && style.visibility !== 'hidden' &&
				style.opacity !== '0';
		};
		for (const sel of candidates) {
			let node;
			try { node = document.querySelector(sel); } catch (e) { continue; }
			if (!node || !visible(node)) continue;
			const rect = node.getBoundingClientRect();
			return {
				x: rect.left + rect.width / 2,
				y: rect.top + rect.height / 2,
				selector: sel,
			};
		}
		return null;
	})(%s)`, jsEncode(selectors))
}

// regionTextScript builds an IIFE returning the rendered text of the
// response region: the configured selector when it matches, then the last
// match heuristically (chat UIs append answers), then main, then body.
func regionTextScript(selector string) string {
	return fmt.Sprintf(`
	(function(sel) {
		if (sel) {
			const nodes = document.querySelectorAll(sel);
			if (nodes.length > 0) {
				return nodes[nodes.length - 1].innerText || '';
			}
		}
		const main = document.querySelector('main');
		if (main) return main.innerText || '';
		return document.body ? (document.body.innerText || '') : '';
	})(%s)`, jsEncode(selector))
}
