package model

import (
	"encoding/gob"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/skinml/pkg/errors"
)

// StagedFile は一時ファイルに書き出された成果物。Commit で最終パスへ
// rename され、Discard で削除される。
type StagedFile struct {
	Path string // 最終的な保存先
	Temp string // 同じディレクトリ内の一時ファイル
	Size int64
}

// Stage は write の出力を path と同じディレクトリの一時ファイルに書き出す。
// 親ディレクトリが無ければ作成する。path 自体はまだ変更されない。
func Stage(path string, write func(w io.Writer) error) (*StagedFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewPersistenceError("mkdir", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, errors.NewPersistenceError("create", path, err)
	}
	staged := &StagedFile{Path: path, Temp: f.Name()}

	if err := write(f); err != nil {
		f.Close()
		staged.Discard()
		return nil, errors.NewPersistenceError("encode", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		staged.Discard()
		return nil, errors.NewPersistenceError("sync", path, err)
	}
	info, err := f.Stat()
	if err == nil {
		staged.Size = info.Size()
	}
	if err := f.Close(); err != nil {
		staged.Discard()
		return nil, errors.NewPersistenceError("close", path, err)
	}
	return staged, nil
}

// StageGob は v を gob でエンコードして Stage する。
func StageGob(path string, v interface{}) (*StagedFile, error) {
	return Stage(path, func(w io.Writer) error {
		return SaveModelToWriter(v, w)
	})
}

// StageJSON は v をインデント付き JSON で Stage する。
func StageJSON(path string, v interface{}) (*StagedFile, error) {
	return Stage(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// Commit は一時ファイルを最終パスへ rename する。
func (s *StagedFile) Commit() error {
	if err := os.Rename(s.Temp, s.Path); err != nil {
		return errors.NewPersistenceError("rename", s.Path, err)
	}
	return nil
}

// Discard は一時ファイルを削除する。Commit 後に呼んでも何もしない。
func (s *StagedFile) Discard() {
	_ = os.Remove(s.Temp)
}

// CommitAll は staged を順に Commit する。途中で失敗した場合、未コミットの
// 一時ファイルは削除される。既にコミット済みのファイルは戻せない。
func CommitAll(staged ...*StagedFile) error {
	for i, s := range staged {
		if err := s.Commit(); err != nil {
			DiscardAll(staged[i:]...)
			return err
		}
	}
	return nil
}

// DiscardAll は全ての一時ファイルを削除する。
func DiscardAll(staged ...*StagedFile) {
	for _, s := range staged {
		if s != nil {
			s.Discard()
		}
	}
}

// SaveModel はモデルを gob 形式でファイルに保存する。
// 書き込みは一時ファイル経由で行われ、失敗時に既存ファイルは残る。
//
// 使用例:
//
//	forest := ensemble.NewRandomForestClassifier()
//	// ... モデルの学習 ...
//	err := model.SaveModel(forest, "model/model.gob")
func SaveModel(model interface{}, filename string) error {
	staged, err := StageGob(filename, model)
	if err != nil {
		return err
	}
	return staged.Commit()
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	forest := ensemble.NewRandomForestClassifier()
//	err := model.LoadModel(forest, "model/model.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.NewPersistenceError("open", filename, err)
	}
	defer file.Close()

	if err := LoadModelFromReader(model, file); err != nil {
		return errors.NewPersistenceError("decode", filename, err)
	}
	return nil
}

// SaveJSON は v を JSON 形式でファイルに保存する。
func SaveJSON(v interface{}, filename string) error {
	staged, err := StageJSON(filename, v)
	if err != nil {
		return err
	}
	return staged.Commit()
}

// LoadJSON はファイルから JSON を読み込む
func LoadJSON(v interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.NewPersistenceError("open", filename, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return errors.NewPersistenceError("decode", filename, err)
	}
	return nil
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
