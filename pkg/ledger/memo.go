package ledger

// EmbedMemo returns a copy of commands in which memo is written under MemoKey
// into the metadata map of every exercise and create argument. Arguments
// without a "meta" map are searched through a nested "transfer" field;
// commands with no recognizable argument shape pass through unchanged.
// The input slice and everything it references are never modified.
func EmbedMemo(commands []Command, memo string) ([]Command, error) {
	if memo == "" {
		return commands, nil
	}

	out, err := CopyCommands(commands)
	if err != nil {
		return nil, err
	}

	for _, cmd := range out {
		if arg := cmd.Argument(); arg != nil {
			applyMemo(arg, memo)
		}
	}
	return out, nil
}

// applyMemo writes memo into arg in place; arg must already be a private copy.
func applyMemo(arg map[string]interface{}, memo string) {
	if meta, ok := arg["meta"].(map[string]interface{}); ok {
		values, ok := meta["values"].(map[string]interface{})
		if !ok {
			values = make(map[string]interface{})
			if existing, isStrings := meta["values"].(map[string]string); isStrings {
				for k, v := range existing {
					values[k] = v
				}
			}
			meta["values"] = values
		}
		values[MemoKey] = memo
		return
	}

	if transfer, ok := arg["transfer"].(map[string]interface{}); ok {
		applyMemo(transfer, memo)
	}
}

// MemoOf returns the memo stored in a command's argument metadata, searching
// the nested transfer field the same way EmbedMemo does.
func MemoOf(cmd Command) (string, bool) {
	arg := cmd.Argument()
	for arg != nil {
		if meta, ok := arg["meta"].(map[string]interface{}); ok {
			values, _ := meta["values"].(map[string]interface{})
			memo, ok := values[MemoKey].(string)
			return memo, ok
		}
		arg, _ = arg["transfer"].(map[string]interface{})
	}
	return "", false
}
