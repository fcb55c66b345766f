package stackfs

import "context"

// Resolve walks a slash-separated path from the root. Intermediate
// components are looked up with IntentNone and released as soon as their
// child is found, so the result's Parent link is informational only. The
// last component is looked up with intent.
//
// Resolve returns (nil, nil) when a component is missing. The root itself
// is returned for "/" and must not be released by the caller.
func (fs *FS) Resolve(ctx context.Context, path string, intent Intent) (*Dentry, error) {
	cur := fs.Root()
	if cur == nil || fs.closed.Load() {
		return nil, ErrClosed
	}

	parts := splitPath(path)
	for idx, name := range parts {
		last := idx == len(parts)-1
		in := IntentNone
		if last {
			in = intent
		}
		next, err := fs.Lookup(ctx, cur, name, in)
		cur.Release()
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		if !last && next.IsNegative() {
			next.Release()
			return nil, nil
		}
		cur = next
	}
	return cur, nil
}
