package utils

import (
	"os"
	"os/exec"
	"path/filepath"
)

func FileTotalPath(name string) string {
	return filepath.Join(CWD(), name)
}

func CWD() string {
	path, err := Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(path)
}

func Executable() (string, error) {
	path, err := os.Executable()
	if err != nil {
		file, err := exec.LookPath(os.Args[0])
		if err != nil {
			return "", err
		}
		path, err = filepath.Abs(file)
		if err != nil {
			return "", err
		}
	}
	return path, nil
}

func Exist(path string) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false
	}
	return true
}

func EnsureDir(dir string) (err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return
		}
	}
	return
}
