package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// errEmptyToken marks a token file with nothing on its first line.
var errEmptyToken = errors.New("token file is empty")

// TokenFile holds the session token read from a file and reloads it when
// the file changes.
type TokenFile struct {
	path string

	mu    sync.RWMutex
	token string

	watcher *fsnotify.Watcher
	updated chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// OpenTokenFile reads the token at path and starts following the file.
// The token is the first line of the file with surrounding whitespace
// removed. An empty file yields an empty token, so requests go out without
// one until the file is filled in.
func OpenTokenFile(path string) (*TokenFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token file %s: %w", path, err)
	}

	tf := &TokenFile{
		path:    abs,
		updated: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if err := tf.reload(); errors.Is(err, errEmptyToken) {
		log.WithField("file", abs).Warn("watcher: token file is empty, sending requests without a token")
	} else if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory: editors and token refreshers usually replace
	// the file by rename, which drops a watch on the file itself.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	tf.watcher = w

	tf.wg.Add(1)
	go tf.run()
	return tf, nil
}

// Token returns the current token.
func (tf *TokenFile) Token() string {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	return tf.token
}

// Updated receives a value after each successful reload.
func (tf *TokenFile) Updated() <-chan struct{} {
	return tf.updated
}

// Path returns the absolute path being followed.
func (tf *TokenFile) Path() string {
	return tf.path
}

func (tf *TokenFile) run() {
	defer tf.wg.Done()

	for {
		select {
		case event, ok := <-tf.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != tf.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := tf.reload(); err != nil {
				log.WithError(err).Warn("watcher: keeping previous token")
				continue
			}
			log.WithField("file", tf.path).Debug("watcher: token reloaded")
			select {
			case tf.updated <- struct{}{}:
			default:
			}

		case err, ok := <-tf.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("watcher: token file watch error")

		case <-tf.done:
			return
		}
	}
}

func (tf *TokenFile) reload() error {
	data, err := os.ReadFile(tf.path)
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	if token == "" {
		return fmt.Errorf("%s: %w", tf.path, errEmptyToken)
	}

	tf.mu.Lock()
	tf.token = token
	tf.mu.Unlock()
	return nil
}

// Close stops following the file.
func (tf *TokenFile) Close() error {
	select {
	case <-tf.done:
		return nil
	default:
	}
	close(tf.done)
	err := tf.watcher.Close()
	tf.wg.Wait()
	return err
}
