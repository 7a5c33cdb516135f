// Package verification 实现邮箱验证码的确定性生成。
//
// 验证码不落库：门户端凭相同的前缀和密钥即可重算出当初签发的验证码，
// 因此同一前缀必须永远得到同一验证码。
package verification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// Mode 验证码生成算法模式
type Mode string

const (
	// ModeLegacy 32位滚动哈希（非加密哈希，可离线暴力枚举，仅为兼容历史验证码保留）
	ModeLegacy Mode = "legacy"
	// ModeHMAC HMAC-SHA256 截断为6位数字，调用契约与 legacy 相同
	ModeHMAC Mode = "hmac"
)

// Generator 将邮箱地址前缀映射为6位数字验证码。
type Generator struct {
	secret string
	mode   Mode
}

// NewGenerator 创建验证码生成器
//
// 参数:
//   - secret: 固定密钥，参与哈希计算
//   - mode: 算法模式，空值回落到 ModeHMAC
func NewGenerator(secret string, mode Mode) *Generator {
	if mode != ModeLegacy {
		mode = ModeHMAC
	}
	return &Generator{secret: secret, mode: mode}
}

// Generate 生成6位数字验证码，永远返回恰好6个ASCII数字。
//
// 对规范化后的前缀是纯函数：相同前缀必然得到相同验证码。
func (g *Generator) Generate(prefix string) string {
	normalized := strings.ToLower(strings.TrimSpace(prefix))

	var n uint32
	switch g.mode {
	case ModeLegacy:
		n = g.legacyHash(normalized)
	default:
		n = g.hmacHash(normalized)
	}

	return fmt.Sprintf("%06d", n%1000000)
}

// legacyHash 滚动乘加哈希：hash = hash*31 + charCode，每步回绕到32位。
func (g *Generator) legacyHash(normalized string) uint32 {
	combined := normalized + g.secret

	var hash int32
	for _, ch := range combined {
		hash = hash*31 + int32(ch)
	}

	// math.MinInt32 取绝对值会溢出，退化为0
	if hash == -2147483648 {
		return 0
	}
	if hash < 0 {
		hash = -hash
	}
	return uint32(hash)
}

// hmacHash HMAC-SHA256 取前4字节作为无符号整数。
func (g *Generator) hmacHash(normalized string) uint32 {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write([]byte(normalized))
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}
