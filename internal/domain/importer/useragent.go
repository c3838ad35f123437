package importer

import (
	"regexp"
	"strings"
)

// uaPattern matches tracking-plugin user agents of the shape
// "wakatime/v1.73.1 (linux-6.5-x86_64) go1.21 vscode/1.85.0 vscode-wakatime/24.0.0":
// the first capture is the OS token, the second the editor token preceding
// the "<editor>-wakatime/<version>" plugin suffix.
var uaPattern = regexp.MustCompile(`(?iU)^(?:(?:wakatime|chrome|firefox|edge)/[^\s]+\s)?(?:\(?(\w+)[-_].*\)?.+\s)?([^/\s]+)-wakatime/.+$`)

var osNames = map[string]string{
	"darwin":  "Mac",
	"macos":   "Mac",
	"linux":   "Linux",
	"windows": "Windows",
	"win":     "Windows",
	"freebsd": "FreeBSD",
	"openbsd": "OpenBSD",
}

var editorNames = map[string]string{
	"vscode":        "VS Code",
	"vscodium":      "VSCodium",
	"intellij":      "IntelliJ",
	"pycharm":       "PyCharm",
	"goland":        "GoLand",
	"webstorm":      "WebStorm",
	"vim":           "Vim",
	"neovim":        "Neovim",
	"emacs":         "Emacs",
	"sublime":       "Sublime Text",
	"atom":          "Atom",
	"xcode":         "Xcode",
	"zed":           "Zed",
	"terminal":      "Terminal",
	"notepadpp":     "Notepad++",
	"visualstudio":  "Visual Studio",
	"androidstudio": "Android Studio",
}

// ParseUserAgent extracts editor and OS names from a plugin user-agent
// string, applying the capitalization table for known values. Unknown
// agents yield empty strings.
func ParseUserAgent(ua string) (editor, os string) {
	groups := uaPattern.FindStringSubmatch(ua)
	if len(groups) != 3 {
		return "", ""
	}

	if groups[1] != "" {
		os = strings.ToLower(groups[1])
		if pretty, ok := osNames[os]; ok {
			os = pretty
		} else {
			os = strings.ToUpper(os[:1]) + os[1:]
		}
	}

	editor = strings.ToLower(groups[2])
	if pretty, ok := editorNames[editor]; ok {
		editor = pretty
	}
	return editor, os
}
