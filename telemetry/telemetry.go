package telemetry

import "strings"

// missionPadKeys 是挑战卡定位字段，不随状态上报保存。
var missionPadKeys = map[string]struct{}{
	"mid":  {},
	"x":    {},
	"y":    {},
	"z":    {},
	"mpry": {},
}

// Parse 解析无人机状态字符串（形如 "pitch:0;roll:0;yaw:0;bat:75;...\r\n"）。
// 规则：
// - 以 ';' 分段，每段在第一个 ':' 处拆分为 key/value
// - 缺少 ':' 或 key 为空的段被忽略
// - 挑战卡定位字段（mid/x/y/z/mpry）被忽略
// 参数：
// - s: 原始状态字符串
// 返回：
// - map[string]string: 解析结果（总是非 nil）
func Parse(s string) map[string]string {
	out := make(map[string]string)
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		k, v, ok := strings.Cut(seg, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		if _, skip := missionPadKeys[k]; skip {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// Clone 返回遥测表的拷贝。
func Clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
