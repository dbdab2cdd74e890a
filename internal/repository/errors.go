package repository

import "errors"

var ErrNotFound = errors.New("not found")

// 一意制約違反（二重送信キーなど）
var ErrDuplicate = errors.New("duplicate")

// 条件付き更新で、読んだときのステータスから既に変わっていた
var ErrStaleStatus = errors.New("stale status")
