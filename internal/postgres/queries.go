package postgres

const (
	qChannelColumns = `id, name, description, is_private, owner_id, created_at, updated_at`

	qInsertChannel = `
		INSERT INTO channels (name, description, is_private, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	qGetChannel = `SELECT ` + qChannelColumns + ` FROM channels WHERE id = $1`

	qFindChannelByName = `
		SELECT ` + qChannelColumns + `
		FROM channels
		WHERE owner_id = $1 AND name = $2
		ORDER BY created_at
		LIMIT 1`

	qListVisibleChannels = `
		SELECT ` + qChannelColumns + `
		FROM channels c
		WHERE c.is_private = false
		   OR c.owner_id = $1
		   OR EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = $1)
		ORDER BY c.updated_at DESC, c.id`

	qInsertMember = `
		INSERT INTO channel_members (user_id, channel_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, channel_id) DO NOTHING`

	qIsMember = `SELECT EXISTS(SELECT 1 FROM channel_members WHERE user_id = $1 AND channel_id = $2)`

	qGetMember = `
		SELECT user_id, channel_id, role, joined_at
		FROM channel_members
		WHERE user_id = $1 AND channel_id = $2`

	qListMembers = `
		SELECT user_id, channel_id, role, joined_at
		FROM channel_members
		WHERE channel_id = $1
		ORDER BY joined_at ASC`

	qInsertMessage = `
		WITH ins AS (
			INSERT INTO messages (id, channel_id, user_id, content)
			VALUES ($1, $2, $3, $4)
			RETURNING id, channel_id, user_id, content, created_at
		)
		SELECT ins.id, ins.channel_id, ins.user_id, ins.content, ins.created_at,
		       u.name, COALESCE(u.email, ''), u.image
		FROM ins
		LEFT JOIN users u ON u.id = ins.user_id`

	qCountMessages = `SELECT COUNT(*) FROM messages WHERE channel_id = $1`

	qListMessagesNewest = `
		SELECT m.id, m.channel_id, m.user_id, m.content, m.created_at,
		       u.name, COALESCE(u.email, ''), u.image
		FROM messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		OFFSET $2 LIMIT $3`

	qListMessagesOldest = `
		SELECT m.id, m.channel_id, m.user_id, m.content, m.created_at,
		       u.name, COALESCE(u.email, ''), u.image
		FROM messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = $1
		ORDER BY m.created_at ASC, m.id ASC
		OFFSET $2 LIMIT $3`

	qGetUser = `SELECT id, name, email, image FROM users WHERE id = $1`

	qUpsertUser = `
		INSERT INTO users (id, name, email, image)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, image = EXCLUDED.image`
)
