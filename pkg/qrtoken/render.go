package qrtoken

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultImageSize 默认二维码图片边长（像素）
const DefaultImageSize = 300

// RenderDataURL 将令牌编码为 PNG 二维码，并返回可直接用于 <img src> 的 data URL
func RenderDataURL(payload string, size int) (string, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("生成二维码图片失败: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
