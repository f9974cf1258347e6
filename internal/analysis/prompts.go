package analysis

import (
	"fmt"
	"strings"

	"github.com/cpghunt/cpghunt/internal/cpg"
)

const classificationSystemPrompt = `You are a code security analyst specialized in OS command injection (CWE-78).
Given a function, decide what role it plays in a command injection attack chain.

Role definitions:
1. SOURCE: a function that can introduce untrusted data
   - user input (scanf, fgets, getchar, ...)
   - command line arguments (argv)
   - environment variables (getenv)
   - network receives (recv, read, ...)
   - file reads

2. SINK: a function that can execute an OS command
   - direct command execution (system, the exec family)
   - pipe operations (popen)
   - script interpreter invocations

3. SANITIZER: a function that cleans or validates data against command injection
   - input validation
   - shell escaping (escapeshellarg and similar)
   - allowlist filtering

4. NONE: a function unrelated to command injection

Respond with a single JSON object and nothing else.`

const classificationUserTemplate = `Analyze the following function:

%s

Return a JSON object with this shape:
{
    "analysis_result": {
        "function_name": "%s",
        "roles": [
            {
                "role": "SOURCE|SINK|SANITIZER|NONE",
                "parameter_index": -1,
                "confidence": 0.0,
                "reason": "short justification"
            }
        ]
    }
}

Index convention: -1 is the return value, 0 is the receiver, positive
numbers are positional parameters starting at 1.

Requirements:
1. A function may carry several roles at different indices.
2. Only report roles with confidence >= 0.6.
3. Judge the function's actual behavior, not only its name.
4. Consider what each parameter is used for and what the return value carries.`

const semanticsSystemPrompt = `You are a static analysis expert generating data-flow semantics for functions
whose bodies are not visible to the analyzer. Describe how data moves between
the parameters and the return value of a function.

Respond with a single JSON object and nothing else, without code fences or
surrounding prose.`

const semanticsUserTemplate = `Generate parameter data-flow rules for the following function.

%s

Index convention: -1 is the return value, 0 is the receiver, positive numbers
are positional parameters starting at 1. A flow {"from": A, "to": B} states
that data entering at index A reaches index B.

Typical patterns:
- input functions (fgets, read): the stream flows into the output buffer
- copy functions (strcpy, memcpy): the second argument flows into the first
- allocators (malloc, strdup): the argument flows into the return value
- formatters (sprintf): the format arguments flow into the output buffer

Every parameter that can carry tainted data through the call must also appear
in a self mapping (same from and to index), otherwise taint propagation stops
at the call. If the function moves no data, return an empty param_flows array.

Return a JSON object with this shape:
{
    "analysis_result": {
        "function_name": "%s",
        "param_flows": [
            {"from": 0, "to": 0}
        ],
        "confidence": "high|medium|low",
        "reasoning": "short justification"
    }
}`

const verdictSystemPrompt = `You are a code security analyst reviewing candidate taint-flow paths for
OS command injection (CWE-78). For each path decide whether an attacker who
controls the source can influence the command executed at the sink, taking
any sanitization along the path into account.

Respond with a single JSON object and nothing else.`

const verdictUserTemplate = `A static analyzer reported a data-flow path from an untrusted source to a
command execution sink. The ordered code fragments along the path are:

%s

Source step: %s
Sink step: %s

Return a JSON object with this shape:
{
    "analysis_result": {
        "is_vulnerable": true,
        "confidence": 0.0,
        "vulnerability_type": "CWE-78",
        "sanitizers": ["names of sanitizing functions seen on the path"],
        "reasoning": "short justification"
    }
}

Mark the path as not vulnerable when the data is fully neutralized before the
sink or when the source cannot actually carry attacker-controlled data.`

func classificationPrompt(fn *cpg.Function) (system, user string) {
	return classificationSystemPrompt,
		fmt.Sprintf(classificationUserTemplate, fn.PromptInfo(), fn.FullName)
}

func semanticsPrompt(fn *cpg.Function) (system, user string) {
	return semanticsSystemPrompt,
		fmt.Sprintf(semanticsUserTemplate, fn.PromptInfo(), fn.FullName)
}

func verdictPrompt(path *cpg.FlowPath) (system, user string) {
	chain := path.MethodChain()
	steps := make([]string, 0, len(chain))
	for i, code := range chain {
		steps = append(steps, fmt.Sprintf("%d. %s", i+1, code))
	}
	var src, sink string
	if n := path.Source(); n != nil {
		src = n.String()
	}
	if n := path.Sink(); n != nil {
		sink = n.String()
	}
	return verdictSystemPrompt,
		fmt.Sprintf(verdictUserTemplate, strings.Join(steps, "\n"), src, sink)
}
