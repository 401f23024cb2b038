package share

import "errors"

var (
	// ErrStaleJob 提交的任务不存在、已过期或已被清场
	ErrStaleJob = errors.New("share: stale job")

	// ErrDuplicate 同一会话对同一任务的重复提交
	ErrDuplicate = errors.New("share: duplicate share")

	// ErrBadExtranonce2 extranonce2 长度与会话分配不符
	ErrBadExtranonce2 = errors.New("share: bad extranonce2 length")

	// ErrTimeTooOld 份额时间戳落后当前时间过多
	ErrTimeTooOld = errors.New("share: ntime too old")

	// ErrTimeInFuture 份额时间戳超前当前时间过多
	ErrTimeInFuture = errors.New("share: ntime too far in the future")

	// ErrBadNTime ntime 不是合法的十六进制时间戳
	ErrBadNTime = errors.New("share: malformed ntime")
)
