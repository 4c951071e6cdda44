package utils

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/metraware/qhse_backend/config"
)

func GetTypeName[T any]() string {
	var v T
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// read a cached instance, Type:$id
func RetrieveRedisItem[T any](id int) (*T, bool, error) {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	var result T
	exists, err := config.GetRedisObject(key, &result)
	if err != nil || !exists {
		return nil, false, err
	}
	return &result, true, nil
}

// cache an instance, Type:$id
func StoreRedisItem[T any](item *T, id int) error {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	return config.SetRedisObject(key, item, 0)
}

// remove an instance, Type:$id
func RemoveRedisItem[T any](id int) error {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	return config.RemoveRedisKey(key)
}

// clear list cache, TypeList
func RemoveRedisList[T any]() error {
	key := GetTypeName[T]() + "List"
	return config.RemoveRedisKey(key)
}

func RedisListKey[T any]() string {
	return strings.TrimSpace(GetTypeName[T]()) + "List"
}
