// Package prompt 加载提示词模板，优先读取配置目录，缺失时回退到内置模板
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"qa-compass-server/src/core/errs"
)

// 内置提示词名称
const (
	QA        = "qa"
	Knowledge = "knowledge"
)

//go:embed prompts/*.md
var embedded embed.FS

var extensions = []string{".md", ".txt"}

// Loader 提示词加载器，文件内容按路径缓存
type Loader struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]string
}

// NewLoader dir 为空时只使用内置模板
func NewLoader(dir string) *Loader {
	return &Loader{dir: strings.TrimSpace(dir), cache: make(map[string]string)}
}

// Load 读取提示词并替换 {{key}} 占位符
func (l *Loader) Load(name string, vars map[string]string) (string, error) {
	content, err := l.read(name)
	if err != nil {
		return "", err
	}
	for k, v := range vars {
		content = strings.ReplaceAll(content, "{{"+k+"}}", v)
	}
	return content, nil
}

func (l *Loader) read(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.NewInput("prompt name is required", nil)
	}

	for _, candidate := range candidates(name) {
		if l.dir != "" || filepath.IsAbs(candidate) {
			p := candidate
			if !filepath.IsAbs(p) {
				p = filepath.Join(l.dir, p)
			}
			if content, ok, err := l.cached("file:"+p, func() ([]byte, error) { return os.ReadFile(p) }); ok || err != nil {
				return content, err
			}
		}
	}

	for _, candidate := range candidates(name) {
		if filepath.IsAbs(candidate) {
			continue
		}
		p := path.Join("prompts", filepath.ToSlash(candidate))
		if content, ok, err := l.cached("embed:"+p, func() ([]byte, error) { return embedded.ReadFile(p) }); ok || err != nil {
			return content, err
		}
	}

	return "", errs.NewNotFound("prompt", name)
}

// cached 命中缓存或读取成功时 ok 为 true；文件不存在时 ok 与 err 均为空
func (l *Loader) cached(key string, readFn func() ([]byte, error)) (string, bool, error) {
	l.mu.RLock()
	content, hit := l.cache[key]
	l.mu.RUnlock()
	if hit {
		return content, true, nil
	}

	data, err := readFn()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("读取提示词失败 %s: %w", key, err)
	}

	l.mu.Lock()
	l.cache[key] = string(data)
	l.mu.Unlock()
	return string(data), true, nil
}

// List 返回可用的提示词文件名，配置目录覆盖同名内置模板
func (l *Loader) List() []string {
	seen := make(map[string]struct{})
	if entries, err := embedded.ReadDir("prompts"); err == nil {
		for _, e := range entries {
			if !e.IsDir() && hasPromptExt(e.Name()) {
				seen[e.Name()] = struct{}{}
			}
		}
	}
	if l.dir != "" {
		if entries, err := os.ReadDir(l.dir); err == nil {
			for _, e := range entries {
				if !e.IsDir() && hasPromptExt(e.Name()) {
					seen[e.Name()] = struct{}{}
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reset 清空缓存，目录中的模板被修改后调用
func (l *Loader) Reset() {
	l.mu.Lock()
	l.cache = make(map[string]string)
	l.mu.Unlock()
}

func candidates(name string) []string {
	out := []string{name}
	if filepath.Ext(name) == "" {
		for _, ext := range extensions {
			out = append(out, name+ext)
		}
	}
	return out
}

func hasPromptExt(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}
