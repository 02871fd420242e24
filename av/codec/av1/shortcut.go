// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package av1

// PeekFrameType 不经完整解析读取帧头的 frame_type。
// show_existing_frame 为 1 时帧类型取决于参考槽位，返回 false。
func PeekFrameType(payload []byte, reducedStill bool) (FrameType, bool) {
	if reducedStill {
		return KeyFrame, true
	}
	if len(payload) < 1 || payload[0]&0x80 != 0 {
		return 0, false
	}
	return FrameType((payload[0] >> 5) & 0x03), true
}

// IsKeyFrame 判断 OBU 是否为关键帧（显示的或不显示的）
func IsKeyFrame(o *Obu) bool {
	return o.HasFrameType && o.FrameType == KeyFrame
}
