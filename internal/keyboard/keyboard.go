// Package keyboard holds the built-in keyboard layout page and the bridge
// script that carries taps from any layout to the shell.
package keyboard

import (
	_ "embed"
	"net/url"
	"path/filepath"
)

//go:embed assets/keyboard.html
var page []byte

//go:embed assets/bridge.js
var bridge string

// Page returns the built-in layout
func Page() []byte {
	return page
}

// Bridge returns the script defining window.webkit.messageHandlers.button
func Bridge() string {
	return bridge
}

// FileURL converts a layout file path to an absolute file:// URL
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
