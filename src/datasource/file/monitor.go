// monitor.go
package file

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监听数据文件所在目录, 目标文件被写入、创建或替换时回调
type FileMonitor struct {
	target  string
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	closed  bool
}

func NewFileMonitor(target string) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// 监听目录而不是文件, 邮件附件落盘是整文件替换
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	return &FileMonitor{
		target:  filepath.Clean(target),
		watcher: watcher,
	}, nil
}

// Watch 阻塞直到 Close, 错误交给 onError
func (m *FileMonitor) Watch(handler func(string), onError func(error)) {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != m.target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				handler(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

func (m *FileMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.watcher.Close()
}
