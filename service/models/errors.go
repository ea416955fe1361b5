package models

import "errors"

// ErrNotFound 实体不存在，数据访问层统一将 gorm.ErrRecordNotFound 映射为该错误
var ErrNotFound = errors.New("记录不存在")
