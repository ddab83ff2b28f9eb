package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aseptimu/matchup-votes/internal/app/service"
	"go.uber.org/zap"
)

// fileDocument - формат файла: {"votes": {"<matchup>": {"<choice>": n}}}.
type fileDocument struct {
	Votes map[string]service.Tally `json:"votes"`
}

// FileStore держит все голоса в памяти и переписывает JSON-документ целиком
// на каждый инкремент. Память меняется только после успешного rename.
type FileStore struct {
	mu       sync.RWMutex
	filePath string
	timeout  time.Duration
	data     map[string]service.Tally
	logger   *zap.SugaredLogger

	// writeFile пишет документ во временный файл и возвращает его путь.
	writeFile func(payload []byte) (string, error)
}

func NewFileStore(filePath string, timeout time.Duration, logger *zap.SugaredLogger) (*FileStore, error) {
	store := &FileStore{
		filePath: filePath,
		timeout:  timeout,
		data:     make(map[string]service.Tally),
		logger:   logger,
	}
	store.writeFile = store.writeTemp
	if err := store.loadFromFile(); err != nil {
		return nil, err
	}
	logger.Debugw("File store loaded", "path", filePath, "matchups", len(store.data))
	return store, nil
}

func (fs *FileStore) loadFromFile() error {
	raw, err := os.ReadFile(fs.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return unavailable("read "+fs.filePath, err)
	}
	if len(raw) == 0 {
		return nil
	}

	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode %s: %w", fs.filePath, err)
	}
	for key, tally := range doc.Votes {
		fs.data[key] = tally.Clone()
	}
	return nil
}

type tempFile struct {
	path string
	err  error
}

// persist записывает data во временный файл рядом с целевым и атомарно
// подменяет им целевой. Если ctx истёк раньше, чем файл записан, целевой
// файл не трогается, а временный удаляется.
func (fs *FileStore) persist(ctx context.Context, data map[string]service.Tally) error {
	if err := ctx.Err(); err != nil {
		return unavailable("write", err)
	}

	payload, err := json.MarshalIndent(fileDocument{Votes: data}, "", "  ")
	if err != nil {
		return unavailable("encode", err)
	}

	ch := make(chan tempFile, 1)
	go func() {
		path, err := fs.writeFile(payload)
		ch <- tempFile{path: path, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			fs.logger.Errorw("Failed to write vote file", "path", fs.filePath, "err", res.err)
			return unavailable("write", res.err)
		}
		if err := os.Rename(res.path, fs.filePath); err != nil {
			os.Remove(res.path)
			fs.logger.Errorw("Failed to replace vote file", "path", fs.filePath, "err", err)
			return unavailable("rename", err)
		}
		return nil
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.err == nil {
				os.Remove(res.path)
			}
		}()
		fs.logger.Errorw("Vote file write timed out", "path", fs.filePath, "err", ctx.Err())
		return unavailable("write", ctx.Err())
	}
}

func (fs *FileStore) writeTemp(payload []byte) (string, error) {
	dir, base := filepath.Split(fs.filePath)
	if dir == "" {
		dir = "."
	}

	file, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		return "", err
	}
	path := file.Name()

	if _, err := file.Write(payload); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	if err := os.Chmod(path, fs.fileMode()); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (fs *FileStore) fileMode() os.FileMode {
	if info, err := os.Stat(fs.filePath); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}

func (fs *FileStore) Dump(_ context.Context) (map[string]service.Tally, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return cloneData(fs.data), nil
}

func (fs *FileStore) Get(_ context.Context, key string) (service.Tally, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.data[key].Clone(), nil
}

func (fs *FileStore) Increment(ctx context.Context, key, choice string) (service.Tally, error) {
	ctx, cancel := withTimeout(ctx, fs.timeout)
	defer cancel()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	next := fs.data[key].Clone()
	next[choice]++

	snapshot := make(map[string]service.Tally, len(fs.data)+1)
	for k, v := range fs.data {
		snapshot[k] = v
	}
	snapshot[key] = next

	if err := fs.persist(ctx, snapshot); err != nil {
		return nil, err
	}

	fs.data = snapshot
	return next.Clone(), nil
}

func (fs *FileStore) NormalizeKeys(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx, fs.timeout)
	defer cancel()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, changed := normalizeData(fs.data)
	if changed == 0 {
		return 0, nil
	}
	if err := fs.persist(ctx, data); err != nil {
		return 0, err
	}
	fs.data = data
	return changed, nil
}

// Ping проверяет, что каталог файла доступен.
func (fs *FileStore) Ping(_ context.Context) error {
	dir := filepath.Dir(fs.filePath)
	info, err := os.Stat(dir)
	if err != nil {
		return unavailable("stat "+dir, err)
	}
	if !info.IsDir() {
		return unavailable("stat "+dir, fmt.Errorf("%s is not a directory", dir))
	}
	return nil
}

func (fs *FileStore) Close() error {
	return nil
}
