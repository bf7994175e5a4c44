package economy

import (
	"crypto/sha256"
	"encoding/hex"
)

// ReferralCodeLength 邀请码长度
const ReferralCodeLength = 6

// ReferralCode 由账户ID确定性生成邀请码
//
// sha256(id) 的 hex 再做一次 sha256，取最终 hex 的后 6 位。
// 已有数据依赖这个算法，不能修改。
func ReferralCode(accountID string) string {
	first := sha256.Sum256([]byte(accountID))
	second := sha256.Sum256([]byte(hex.EncodeToString(first[:])))
	digest := hex.EncodeToString(second[:])
	return digest[len(digest)-ReferralCodeLength:]
}
