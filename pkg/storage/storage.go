package storage

import (
	"errors"
	"io"
)

// ErrFileNotFound 指定ID的文件在存储中不存在
var ErrFileNotFound = errors.New("file not found in storage")

// FileInfo 已保存文件的元数据
type FileInfo struct {
	// ID 存储层分配的唯一标识，上层用它而不是路径引用文件
	ID string
	// Name 上传时的原始文件名
	Name string
	// Size 文件字节数
	Size int64
	// MimeType 按扩展名推断的MIME类型
	MimeType string
	// Path 实现内部的存储路径，仅用于诊断
	Path string
}

// Storage 原始文档的文件存储接口
// 文档服务只保存和读取上传的原文，解析后的内容走数据库和向量库
type Storage interface {
	Save(reader io.Reader, filename string) (FileInfo, error)
	Get(id string) (io.ReadCloser, error)
	Delete(id string) error
	List() ([]FileInfo, error)
	Exists(id string) (bool, error)
}
