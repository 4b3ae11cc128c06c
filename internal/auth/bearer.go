package auth

import "strings"

// BearerToken 从Authorization头中取出令牌，前缀不区分大小写，格式不对返回空串。
// REST和GraphQL共用，两边认证行为一致
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
