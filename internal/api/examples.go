package api

// Example is a ready-to-run snippet served for quick starts.
type Example struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Stdin       string `json:"stdin,omitempty"`
}

// Examples returns the built-in snippet catalog.
func Examples() []Example {
	return []Example{
		{
			Name:        "hello_world",
			Description: "Print a greeting to stdout.",
			Source: `#include <iostream>
using namespace std;

int main() {
    cout << "Hello World!" << endl;
    return 0;
}
`,
		},
		{
			Name:        "sum",
			Description: "Read two integers from stdin and print their sum.",
			Source: `#include <iostream>
using namespace std;

int main() {
    int a, b;
    cin >> a >> b;
    cout << "Sum: " << (a + b) << endl;
    return 0;
}
`,
			Stdin: "10 20",
		},
		{
			Name:        "fibonacci",
			Description: "Read n from stdin and print the first n Fibonacci numbers.",
			Source: `#include <iostream>
using namespace std;

int main() {
    int n;
    cin >> n;
    int a = 0, b = 1;
    for (int i = 0; i < n; i++) {
        cout << a << " ";
        int temp = a + b;
        a = b;
        b = temp;
    }
    cout << endl;
    return 0;
}
`,
			Stdin: "10",
		},
	}
}
