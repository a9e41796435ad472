// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// FSInfo links every parsed definition back to the file it came from, so
// errors can name the file.
package model

type FSInfo struct {
	FilePath string
}

func NewFSInfo(filePath string) *FSInfo {
	return &FSInfo{
		FilePath: filePath,
	}
}

func (f *FSInfo) String() string {
	if f == nil {
		return "<unknown>"
	}
	return f.FilePath
}
