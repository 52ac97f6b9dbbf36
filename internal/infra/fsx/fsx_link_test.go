package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLink_SameFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	dst := filepath.Join(dir, "b.mp4")
	if err := Link(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	same, err := SameFile(src, dst)
	if err != nil || !same {
		t.Fatalf("硬链接应指向同一文件：same=%v err=%v", same, err)
	}

	// 目标已存在：保留 os.ErrExist 语义，交给上层决定是否改名。
	if err := Link(src, dst); !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
}

func TestSameFile_MissingIsFalse(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	same, err := SameFile(src, filepath.Join(dir, "missing.mp4"))
	if err != nil || same {
		t.Fatalf("不存在的路径应返回 false,nil：same=%v err=%v", same, err)
	}

	other := filepath.Join(dir, "c.mp4")
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	same, err = SameFile(src, other)
	if err != nil || same {
		t.Fatalf("内容相同但不同文件应返回 false：same=%v err=%v", same, err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	ok, err := Exists(filepath.Join(dir, "nope"))
	if err != nil || ok {
		t.Fatalf("期望不存在：ok=%v err=%v", ok, err)
	}
	ok, err = Exists(dir)
	if err != nil || !ok {
		t.Fatalf("期望存在：ok=%v err=%v", ok, err)
	}
}

func TestEnsureDir_FileConflict(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "Unknown")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if err := EnsureDir(p); !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
	if err := EnsureDir(filepath.Join(dir, "a", "b")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := EnsureDir(filepath.Join(dir, "a", "b")); err != nil {
		t.Fatalf("重复创建不应报错：%v", err)
	}
}
