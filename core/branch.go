package core

// MainBranch is the name of the root branch of every stack.
const MainBranch = ""

// CommonNamespace is the default state namespace shared by all branches.
const CommonNamespace = "common"

// BuildBranchPath joins a parent branch and a child name into a dotted path.
func BuildBranchPath(parent, child string) string {
	if parent == MainBranch {
		return child
	}

	return parent + "." + child
}

// BranchNamespace returns the state namespace used for branch scoped
// bookkeeping. The main branch maps to CommonNamespace.
func BranchNamespace(branch string) string {
	if branch == MainBranch {
		return CommonNamespace
	}

	return "branch:" + branch
}

// BranchLabel renders a branch name for logs and APIs.
func BranchLabel(branch string) string {
	if branch == MainBranch {
		return "main"
	}

	return branch
}
