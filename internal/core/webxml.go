package core

import (
	"bytes"
	"fmt"
	"strings"
)

// Deployment descriptor editing. Every edit is a byte-level splice: blocks
// are located by tag, cut or inserted as whole lines, and every unrelated
// byte of the document is left exactly as it was.

const (
	agentServletName      = "jolokia-agent"
	jsr160DispatcherClass = "org.jolokia.jsr160.Jsr160RequestDispatcher"
)

// securityTags are the top-level blocks that make up an authentication
// setup, in document order.
var securityTags = []string{"security-constraint", "login-config", "security-role"}

// securityBlockTemplate is the authentication setup inserted by AddSecurity.
// %[1]s is the indentation unit, %[2]s the role name.
const securityBlockTemplate = `%[1]s<security-constraint>
%[1]s%[1]s<web-resource-collection>
%[1]s%[1]s%[1]s<web-resource-name>Jolokia Agent</web-resource-name>
%[1]s%[1]s%[1]s<url-pattern>/*</url-pattern>
%[1]s%[1]s</web-resource-collection>
%[1]s%[1]s<auth-constraint>
%[1]s%[1]s%[1]s<role-name>%[2]s</role-name>
%[1]s%[1]s</auth-constraint>
%[1]s</security-constraint>
%[1]s<login-config>
%[1]s%[1]s<auth-method>BASIC</auth-method>
%[1]s%[1]s<realm-name>Jolokia</realm-name>
%[1]s</login-config>
%[1]s<security-role>
%[1]s%[1]s<role-name>%[2]s</role-name>
%[1]s</security-role>
`

// proxyBlockTemplate is the JSR-160 proxy declaration inserted into the
// agent servlet. %[1]s is the indentation of the servlet-class line,
// %[2]s one extra indentation unit.
const proxyBlockTemplate = `%[1]s<init-param>
%[1]s%[2]s<param-name>dispatcherClasses</param-name>
%[1]s%[2]s<param-value>` + jsr160DispatcherClass + `</param-value>
%[1]s</init-param>
`

// SecurityRole returns the role bound by the descriptor's auth-constraint,
// if an authentication setup is present.
func SecurityRole(doc []byte) (string, bool) {
	start, end, ok := elementRange(doc, "security-constraint", 0)
	if !ok {
		return "", false
	}
	role, ok := elementText(doc[start:end], "role-name")
	if !ok {
		return "", false
	}
	return role, true
}

// HasProxy reports whether the descriptor declares the JSR-160 proxy
// dispatcher.
func HasProxy(doc []byte) bool {
	for from := 0; ; {
		start, end, ok := elementRange(doc, "init-param", from)
		if !ok {
			return false
		}
		block := doc[start:end]
		if bytes.Contains(block, []byte("dispatcherClasses")) && bytes.Contains(block, []byte(jsr160DispatcherClass)) {
			return true
		}
		from = end
	}
}

// AddSecurity makes the descriptor require authentication for the given
// role. If an authentication setup already exists only the bound role is
// replaced; otherwise the full setup is inserted before </web-app>.
// Returns the edited document and whether anything changed.
func AddSecurity(doc []byte, role string) ([]byte, bool, error) {
	if existing, ok := SecurityRole(doc); ok {
		if existing == role {
			return doc, false, nil
		}
		return replaceSecurityRole(doc, role), true, nil
	}

	closeIdx := bytes.Index(doc, []byte("</web-app>"))
	if closeIdx < 0 {
		return nil, false, fmt.Errorf("descriptor has no </web-app> element")
	}
	insertAt := lineStart(doc, closeIdx)

	block := fmt.Sprintf(securityBlockTemplate, indentUnit(doc), role)
	return splice(doc, insertAt, insertAt, []byte(block)), true, nil
}

// RemoveSecurity removes the authentication setup. Removing from a
// descriptor without one is a no-op, not an error.
func RemoveSecurity(doc []byte) ([]byte, bool) {
	changed := false
	for _, tag := range securityTags {
		for {
			start, end, ok := elementRange(doc, tag, 0)
			if !ok {
				break
			}
			doc = splice(doc, blockStart(doc, start), blockEnd(doc, end), nil)
			changed = true
		}
	}
	return doc, changed
}

// AddProxy inserts the JSR-160 proxy declaration into the agent servlet.
func AddProxy(doc []byte) ([]byte, bool, error) {
	if HasProxy(doc) {
		return doc, false, nil
	}

	start, end, ok := agentServletRange(doc)
	if !ok {
		return nil, false, fmt.Errorf("descriptor has no %q servlet", agentServletName)
	}

	// The init-param goes directly after the servlet-class line.
	rel := bytes.Index(doc[start:end], []byte("</servlet-class>"))
	if rel < 0 {
		return nil, false, fmt.Errorf("%q servlet has no servlet-class element", agentServletName)
	}
	insertAt := blockEnd(doc, start+rel+len("</servlet-class>"))

	classLineStart := lineStart(doc, start+rel)
	indent := leadingWhitespace(doc[classLineStart:])
	block := fmt.Sprintf(proxyBlockTemplate, indent, indentUnit(doc))
	return splice(doc, insertAt, insertAt, []byte(block)), true, nil
}

// RemoveProxy removes the JSR-160 proxy declaration. A no-op if absent.
func RemoveProxy(doc []byte) ([]byte, bool) {
	for from := 0; ; {
		start, end, ok := elementRange(doc, "init-param", from)
		if !ok {
			return doc, false
		}
		block := doc[start:end]
		if bytes.Contains(block, []byte("dispatcherClasses")) && bytes.Contains(block, []byte(jsr160DispatcherClass)) {
			return splice(doc, blockStart(doc, start), blockEnd(doc, end), nil), true
		}
		from = end
	}
}

// replaceSecurityRole rewrites every role-name inside the security blocks.
func replaceSecurityRole(doc []byte, role string) []byte {
	for _, tag := range []string{"security-constraint", "security-role"} {
		start, end, ok := elementRange(doc, tag, 0)
		if !ok {
			continue
		}
		block := doc[start:end]
		rs, re, ok := elementRange(block, "role-name", 0)
		if !ok {
			continue
		}
		inner := fmt.Sprintf("<role-name>%s</role-name>", role)
		doc = splice(doc, start, end, splice(block, rs, re, []byte(inner)))
	}
	return doc
}

// agentServletRange locates the <servlet> block declaring the agent servlet.
func agentServletRange(doc []byte) (int, int, bool) {
	name := []byte("<servlet-name>" + agentServletName + "</servlet-name>")
	for from := 0; ; {
		start, end, ok := elementRange(doc, "servlet", from)
		if !ok {
			return 0, 0, false
		}
		if bytes.Contains(doc[start:end], name) {
			return start, end, true
		}
		from = end
	}
}

// elementRange finds the first occurrence of <tag ...>...</tag> at or after
// from. start is the index of '<', end is just past "</tag>".
func elementRange(doc []byte, tag string, from int) (start, end int, ok bool) {
	open := []byte("<" + tag)
	for i := from; i < len(doc); {
		idx := bytes.Index(doc[i:], open)
		if idx < 0 {
			return 0, 0, false
		}
		start = i + idx
		after := start + len(open)
		// Reject prefixes like <servlet-name> when looking for <servlet>.
		if after < len(doc) && doc[after] != '>' && doc[after] != ' ' && doc[after] != '\t' && doc[after] != '\n' && doc[after] != '\r' {
			i = after
			continue
		}
		closeTag := []byte("</" + tag + ">")
		rel := bytes.Index(doc[start:], closeTag)
		if rel < 0 {
			return 0, 0, false
		}
		return start, start + rel + len(closeTag), true
	}
	return 0, 0, false
}

// elementText returns the inner text of the first <tag>...</tag> occurrence.
func elementText(doc []byte, tag string) (string, bool) {
	start, end, ok := elementRange(doc, tag, 0)
	if !ok {
		return "", false
	}
	inner := doc[start:end]
	gt := bytes.IndexByte(inner, '>')
	closeTag := []byte("</" + tag + ">")
	if gt < 0 || len(inner)-len(closeTag) < gt+1 {
		return "", false
	}
	return strings.TrimSpace(string(inner[gt+1 : len(inner)-len(closeTag)])), true
}

// blockStart widens start back to the beginning of its line when only
// whitespace precedes it, so cuts take the indentation with them.
func blockStart(doc []byte, start int) int {
	ls := lineStart(doc, start)
	for i := ls; i < start; i++ {
		if doc[i] != ' ' && doc[i] != '\t' {
			return start
		}
	}
	return ls
}

// blockEnd widens end past an immediately following newline.
func blockEnd(doc []byte, end int) int {
	if end < len(doc) && doc[end] == '\r' {
		end++
	}
	if end < len(doc) && doc[end] == '\n' {
		end++
	}
	return end
}

func lineStart(doc []byte, idx int) int {
	for idx > 0 && doc[idx-1] != '\n' {
		idx--
	}
	return idx
}

func leadingWhitespace(line []byte) string {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return string(line[:i])
}

// indentUnit guesses the document's indentation unit from its first
// indented line; two spaces when nothing is indented.
func indentUnit(doc []byte) string {
	for _, line := range bytes.Split(doc, []byte("\n")) {
		ws := leadingWhitespace(line)
		if ws != "" && len(ws) < len(line) {
			return ws
		}
	}
	return "  "
}

// splice replaces doc[start:end] with repl, copying so the input backing
// array is never mutated.
func splice(doc []byte, start, end int, repl []byte) []byte {
	out := make([]byte, 0, len(doc)-(end-start)+len(repl))
	out = append(out, doc[:start]...)
	out = append(out, repl...)
	out = append(out, doc[end:]...)
	return out
}
