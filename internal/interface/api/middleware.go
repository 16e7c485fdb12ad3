package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// callerIDKey はginコンテキスト上の呼び出し元IDのキー
const callerIDKey = "callerID"

// ParseTokens は "token:callerID" のカンマ区切り設定をマップに展開する
func ParseTokens(spec string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, callerID, found := strings.Cut(pair, ":")
		if !found || token == "" || callerID == "" {
			continue
		}
		tokens[token] = callerID
	}
	return tokens
}

// identityMiddleware はBearerトークンから呼び出し元を特定する。
// Authorizationヘッダが無い場合は匿名として通す。不正なトークンは401を返す。
func identityMiddleware(tokens map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(callerIDKey, "")
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid Authorization header format, expected: Bearer <token>",
			})
			return
		}

		callerID, ok := tokens[strings.TrimSpace(parts[1])]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API token"})
			return
		}
		c.Set(callerIDKey, callerID)
		c.Next()
	}
}

// callerID はコンテキストから呼び出し元IDを取り出す。匿名なら空文字列。
func callerID(c *gin.Context) string {
	return c.GetString(callerIDKey)
}

// requireCaller は識別済みの呼び出し元を要求する
func requireCaller(c *gin.Context) (string, bool) {
	id := callerID(c)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", false
	}
	return id, true
}
