package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
)

// source 包装 koanf 实例。koanf 的类型化读取在格式错误时返回零值，
// 这里统一改为返回错误。
type source struct {
	k *koanf.Koanf
}

func (s source) lookup(key string) (string, bool) {
	name := strings.ToLower(key)
	if !s.k.Exists(name) {
		return "", false
	}
	value := strings.TrimSpace(s.k.String(name))
	return value, value != ""
}

func (s source) getEnvOrDefault(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s source) parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func (s source) parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func (s source) parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func (s source) parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := s.parseOptionalIntEnv(key)
	if err != nil || val == nil {
		return defaultValue, err
	}
	return *val, nil
}

// parseDurationEnv 接受 "30s"、"24h" 这类写法，纯数字按秒处理。
func (s source) parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
