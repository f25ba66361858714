package service

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden 别名不存在或不属于当前用户，两种情况对调用方不可区分
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidPage 页码缺失或非法
	ErrInvalidPage = errors.New("page_id must be provided in request query")
	// ErrInvalidContact 无法从输入中解析出通信方地址
	ErrInvalidContact = errors.New("invalid contact address")
	// ErrContactExists 该通信方已添加到别名
	ErrContactExists = errors.New("contact already added")
	// ErrReverseAliasTaken 反向别名在写入时发生冲突，归入联系人冲突
	ErrReverseAliasTaken = fmt.Errorf("%w: reverse alias already taken", ErrContactExists)
	// ErrUnauthorized 认证失败
	ErrUnauthorized = errors.New("unauthorized")
)
