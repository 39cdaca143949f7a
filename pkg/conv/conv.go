// Package conv 提供类型转换、map/slice 转换等泛型工具，主要用于读取 YAML/JSON 解析出的 map[string]any。
package conv

import "time"

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、int、int64、int32。
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	default:
		return 0, false
	}
}

// ToInt 将 any 转为 int。
// 支持 int、int64、int32；float 仅在为整数值时接受。
func ToInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case int32:
		return int(val), true
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case float32:
		if val != float32(int(val)) {
			return 0, false
		}
		return int(val), true
	default:
		return 0, false
	}
}

// ConvertSlice 将 []T 按 convert 转为 []U，convert 返回 false 的元素被跳过。
func ConvertSlice[T, U any](s []T, convert func(T) (U, bool)) []U {
	if s == nil {
		return nil
	}
	out := make([]U, 0, len(s))
	for _, v := range s {
		if u, ok := convert(v); ok {
			out = append(out, u)
		}
	}
	return out
}

// SliceAnyToInt 将 []any 转为 []int，无法转换的元素被跳过。
func SliceAnyToInt(v any) []int {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	return ConvertSlice(raw, ToInt)
}

// ConfigGet 从 map[string]any（如 YAML/JSON 解析结果）按 key 取 T，取不到或类型不符时返回 defaultVal。
func ConfigGet[T any](m map[string]any, key string, defaultVal T) T {
	if m == nil {
		return defaultVal
	}
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	t, ok := v.(T)
	if !ok {
		return defaultVal
	}
	return t
}

// ConfigGetInt 从 config 取 int。YAML 常得到 int，JSON 常得到 float64，此处统一处理。
func ConfigGetInt(m map[string]any, key string, defaultVal int) int {
	if m == nil {
		return defaultVal
	}
	n, ok := ToInt(m[key])
	if !ok {
		return defaultVal
	}
	return n
}

// ConfigGetDuration 从 config 取时长：字符串按 time.ParseDuration 解析（"200ms"），数字视为秒。
func ConfigGetDuration(m map[string]any, key string, defaultVal time.Duration) time.Duration {
	if m == nil {
		return defaultVal
	}
	switch val := m[key].(type) {
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return defaultVal
		}
		return d
	default:
		f, ok := ToFloat64(val)
		if !ok {
			return defaultVal
		}
		return time.Duration(f * float64(time.Second))
	}
}
