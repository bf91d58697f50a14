// Пакет diskstore — именованные байтовые хранилища на диске.
// Реализует возможности хранилища, которые потребляют intake и ingest:
// проверка существования, потоковое чтение, потоковая запись, удаление.
// Запись никогда не буферизует файл целиком в памяти.
package diskstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Имена стандартных хранилищ.
const (
	// StoreTemp — временное хранилище между загрузкой и постоянным размещением
	StoreTemp = "temp"
	// StoreDurable — постоянное хранилище принятых файлов
	StoreDurable = "durable"
)

// Ошибки хранилища.
var (
	// ErrUnknownStore — обращение к незарегистрированному хранилищу.
	ErrUnknownStore = errors.New("неизвестное хранилище")
	// ErrPathOutsideRoot — путь выходит за пределы корня хранилища.
	ErrPathOutsideRoot = errors.New("путь выходит за пределы хранилища")
)

// Manager — набор именованных хранилищ, каждое привязано к корневой директории.
type Manager struct {
	roots map[string]string
}

// NewManager создаёт Manager для набора хранилищ {имя: корневая директория}.
// Создаёт корневые директории, если они не существуют.
func NewManager(stores map[string]string) (*Manager, error) {
	roots := make(map[string]string, len(stores))
	for name, root := range stores {
		if err := os.MkdirAll(root, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию хранилища %s (%s): %w", name, root, err)
		}
		roots[name] = root
	}
	return &Manager{roots: roots}, nil
}

// resolve возвращает абсолютный путь файла внутри хранилища.
// Отклоняет пути, выходящие за пределы корня (".." и абсолютные).
func (m *Manager) resolve(store, path string) (string, error) {
	root, ok := m.roots[store]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}

	cleaned := filepath.Clean("/" + path)
	full := filepath.Join(root, cleaned)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathOutsideRoot, path)
	}
	return full, nil
}

// Exists проверяет существование файла в хранилище.
func (m *Manager) Exists(store, path string) bool {
	full, err := m.resolve(store, path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// OpenRead открывает файл для потокового чтения.
// Вызывающий код обязан закрыть ReadCloser на всех путях выхода.
func (m *Manager) OpenRead(store, path string) (io.ReadCloser, error) {
	full, err := m.resolve(store, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s/%s: %w", store, path, err)
	}
	return f, nil
}

// WriteStream записывает данные из reader в файл хранилища потоково.
// Родительские директории создаются автоматически.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется, частичных файлов не остаётся.
func (m *Manager) WriteStream(store, path string, reader io.Reader) (int64, error) {
	full, err := m.resolve(store, path)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("ошибка создания директории для %s/%s: %w", store, path, err)
	}

	tmpPath := full + ".partial"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return size, nil
}

// Delete удаляет файл из хранилища.
// Возвращает nil, если файл уже не существует.
func (m *Manager) Delete(store, path string) error {
	full, err := m.resolve(store, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s/%s: %w", store, path, err)
	}
	return nil
}

// ForEach обходит все файлы хранилища, вызывая fn с относительным путём
// и атрибутами файла. Используется janitor-ом для поиска устаревших
// временных файлов.
func (m *Manager) ForEach(store string, fn func(relPath string, info fs.FileInfo) error) error {
	root, ok := m.roots[store]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info)
	})
}
