package retrieval

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
)

// DocumentID 根据文件名生成稳定的文档标识
func DocumentID(filename string) string {
	sum := md5.Sum([]byte(filename))
	return hex.EncodeToString(sum[:])
}

// PointID 根据(文档ID, 分块序号)生成确定性的整数点标识。
// 同一文档同一序号总是得到同一个ID，重复索引覆盖而不是重复插入；
// 不同文档的ID空间由documentID哈希天然隔离。
func PointID(documentID string, sequence int) uint64 {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", documentID, sequence)))
	hexStr := hex.EncodeToString(sum[:])
	// 取前15个十六进制字符（60位），再压到正的63位整数空间
	value, _ := strconv.ParseUint(hexStr[:15], 16, 64)
	return value % (1 << 63)
}
